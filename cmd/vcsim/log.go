package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/logging"
)

func zerologFor(w io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(logging.ZerologLevel(viper.GetString("logLevel"))).
		With().Timestamp().Logger()
}
