package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/9138noms/NuclearOption-VehicleControl/internal/config"
	"github.com/9138noms/NuclearOption-VehicleControl/internal/offsets"
)

func newLayoutCmd() *cobra.Command {
	var typeName string

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the resolved offsets and a type's placement.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lc := config.GetLayoutConfig()
			dir, _ := os.Getwd()
			schema, err := lc.Schema(dir)
			if err != nil {
				return err
			}
			r, err := lc.Resolver(schema)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			off, err := offsets.Resolve(schema, r, lc.Names())
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(off, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))

			if typeName == "" {
				typeName = lc.OuterType
			}
			fields, err := schema.Shape(typeName)
			if err != nil {
				return err
			}
			l := r.Place(fields)
			fmt.Fprintf(out, "\n%s size=%d align=%d pointer=%d\n", typeName, l.Size, l.Align, r.PointerSize)
			for _, p := range l.Fields {
				fmt.Fprintf(out, "  %-14s %-10s offset=%-4d size=%-4d align=%d\n",
					p.Field.Name, p.Field.Kind, p.Offset, p.Size, p.Align)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "type to place (defaults to the outer type)")
	return cmd
}
