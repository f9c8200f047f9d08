// Package captures provides the read-only captures command.
package captures

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/taxamap/internal/cmd/output"
	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/store"
	"github.com/agentstation/taxamap/pkg/types"
)

// AppContext defines what the captures command needs from the app.
type AppContext interface {
	Store() (store.Store, error)
	OutputFormat() string
}

// NewCommand creates the captures command.
func NewCommand(app AppContext) *cobra.Command {
	var sourceFilter string
	cmd := &cobra.Command{
		Use:     "captures <ref>",
		GroupID: "management",
		Short:   "List the raw source captures behind a stored entity",
		Long: `Captures looks an entity up in the record store, without researching
it, and lists the raw source payloads that were merged into it, oldest
first. The reference is a name, a canonical id or an external id.

JSON and YAML output include the payloads.`,
		Example: `  taxamap captures "Ulva lactuca"
  taxamap captures worms:145984 --source worms --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := output.ParseFormat(string(output.DetectFormat(app.OutputFormat())))
			if err != nil {
				return err
			}
			var source types.SourceID
			if sourceFilter != "" {
				source = types.SourceID(strings.ToLower(sourceFilter))
				if !source.IsValid() {
					return errors.NewValidationError("source", sourceFilter, "unknown source")
				}
			}

			s, err := app.Store()
			if err != nil {
				return err
			}
			e, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			captures, err := s.Captures(cmd.Context(), e.ID)
			if err != nil {
				return err
			}
			if source != "" {
				kept := captures[:0]
				for _, c := range captures {
					if c.Source == source {
						kept = append(kept, c)
					}
				}
				captures = kept
			}
			return output.Captures(cmd.OutOrStdout(), format, captures)
		},
	}
	cmd.Flags().StringVar(&sourceFilter, "source", "", "only show captures from this source")
	return cmd
}
