package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"docstress/internal/dummy"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run an in-memory REST document server",
	Long: `Run an in-memory document server speaking the rest backend protocol, so
that runs can be tried without a database:

  docstress dummy --port 8080 &
  docstress run --backend rest -s localhost -p 8080 -t 4`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		f := cmd.Flags()
		cfg := dummy.ServerConfig{Logger: logger}
		cfg.Port, _ = f.GetInt("port")
		cfg.Latency, _ = f.GetDuration("latency")
		cfg.FailRate, _ = f.GetFloat64("fail-rate")
		if user, _ := f.GetString("user"); user != "" {
			pass, _ := f.GetString("password")
			cfg.Accounts = gin.Accounts{user: pass}
		}

		fmt.Printf("👻 Dummy Server running on http://localhost:%d\n", cfg.Port)
		fmt.Println("   Endpoints: /ping, /db/:db/:collection[/count]")

		if err := dummy.NewServer(cfg).ListenAndServe(ctx); err != nil {
			return fmt.Errorf("dummy: %w", err)
		}
		return nil
	},
}

func init() {
	f := dummyCmd.Flags()
	f.IntP("port", "p", 8080, "Port to run dummy server on")
	f.Duration("latency", 0, "mean delay added to every write")
	f.Float64("fail-rate", 0, "fraction of writes answered with 500")
	f.String("user", "", "require basic auth with this user")
	f.String("password", "", "basic auth password")
}
