package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"docstress/internal/jobscript"
)

var jobscriptCmd = &cobra.Command{
	Use:   "jobscript from:to:by",
	Short: "Generate batch job scripts for a sweep of worker counts",
	Long: `Render one job script per worker count in from:to:by (to is exclusive).
Each script is named <base>_<workers>_<total>.pbs and gets docs = total / workers.

Templates use mustache-style tags: {{docs}}, {{run}}, {{procs}}, {{server}},
{{port}}, {{#clear}}...{{/clear}}. Without --template a PBS script running
docstress is written.`,
	Example: `  docstress jobscript 16:129:16 --server 10.0.0.13 --template hopper.stache`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := jobscript.ParseRange(args[0])
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}

		f := cmd.Flags()
		cfg := jobscript.Config{Range: r}
		cfg.Template, _ = f.GetString("template")
		cfg.TotalDocs, _ = f.GetInt("total")
		cfg.Server, _ = f.GetString("server")
		cfg.Port, _ = f.GetInt("port")
		cfg.Clear, _ = f.GetBool("clear")
		cfg.OutDir, _ = f.GetString("out-dir")

		if path, _ := f.GetString("values"); path != "" {
			if cfg.Values, err = jobscript.LoadValues(path); err != nil {
				return fmt.Errorf("config: %w", err)
			}
		}

		paths, err := jobscript.Generate(cfg)
		if err != nil {
			return fmt.Errorf("jobscript: %w", err)
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	f := jobscriptCmd.Flags()
	f.String("template", "", "template file (*.stache or *.tmpl)")
	f.Int("total", jobscript.DefaultTotalDocs, "total documents, split across workers")
	f.String("server", "", "server host written into the scripts")
	f.Int("port", 27018, "server port written into the scripts")
	f.Bool("clear", true, "scripts clear the data collection first")
	f.String("values", "", "YAML file with extra template variables")
	f.String("out-dir", "", "output directory (default: next to the template)")
}
