package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/ArrowRow-Engine/data"
	"github.com/VanDung-dev/ArrowRow-Engine/rowdata"
)

func newSchemaCmd() *cobra.Command {
	var (
		typeString string
		fromIPC    string
		ipcOut     string
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Convert between row types and Arrow schemas",
		Long: "With --type, prints the Arrow schema derived from a row type and optionally writes it as\n" +
			"a schema-only IPC stream. With --from-ipc, prints the row type of an IPC stream.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if fromIPC != "" {
				content, err := os.ReadFile(fromIPC)
				if err != nil {
					return err
				}
				rec, err := data.NewIPCReader(nil).Decode(content)
				if err != nil {
					return err
				}
				defer rec.Release()
				rt, err := data.ConvertFromSchema(rec.Schema())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, rt.String())
				return err
			}

			if typeString == "" {
				return errors.New("one of --type or --from-ipc is required")
			}
			rt, err := rowdata.ParseRowType(typeString)
			if err != nil {
				return err
			}
			schema, err := data.ConvertToSchema(rt)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(out, schema.String()); err != nil {
				return err
			}
			if ipcOut == "" {
				return nil
			}
			payload, err := data.NewIPCWriter(nil).SerializeSchema(schema)
			if err != nil {
				return err
			}
			return os.WriteFile(ipcOut, payload, 0o644)
		},
	}
	cmd.Flags().StringVar(&typeString, "type", "", `Row type, e.g. "ROW<id BIGINT, ts TIME(6)>"`)
	cmd.Flags().StringVar(&fromIPC, "from-ipc", "", "IPC stream file to read the schema from")
	cmd.Flags().StringVar(&ipcOut, "ipc-out", "", "Write the schema as an IPC stream to this file")
	return cmd
}
