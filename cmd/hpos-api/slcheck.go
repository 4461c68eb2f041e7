package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/holo-host/hpos-api/pkg/client"
)

var slCheckCmd = &cobra.Command{
	Use:   "sl-check",
	Short: "Run a service logger check on a running gateway",
	Long: `Trigger one service logger check on a running hpos-api and print
the clones it created and deleted. Exits non-zero when the check could
not start or any app failed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		rep, err := c.SLCheck(cmd.Context())
		if err != nil {
			return fmt.Errorf("%w (run 'sl-check history' for the full report)", err)
		}

		for _, b := range rep.Cloned {
			fmt.Printf("✓ cloned  %s %s\n", b.AppID, b.Bucket)
		}
		for _, b := range rep.Deleted {
			fmt.Printf("✓ deleted %s %s\n", b.AppID, b.Bucket)
		}
		if len(rep.Cloned) == 0 && len(rep.Deleted) == 0 {
			fmt.Println("Nothing to do")
		}
		return nil
	},
}

var slCheckHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent service logger checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		appID, _ := cmd.Flags().GetString("app")

		h, err := c.History(cmd.Context(), limit, appID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tOUTCOME\tCLONED\tDELETED\tERRORS")
		for _, p := range h.Passes {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
				p.StartedAt.Local().Format(time.DateTime), p.Outcome,
				len(p.Report.Cloned), len(p.Report.Deleted), len(p.Report.Errors))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if len(h.Events) > 0 {
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tEVENT\tAPP\tMESSAGE")
			for _, e := range h.Events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format(time.DateTime), e.Type, e.AppID, e.Message)
			}
			return w.Flush()
		}
		return nil
	},
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("api-addr")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return client.NewClient(addr, timeout)
}

func init() {
	slCheckCmd.AddCommand(slCheckHistoryCmd)

	slCheckCmd.PersistentFlags().String("api-addr", client.DefaultAddr, "Address of the hpos-api gateway")
	slCheckCmd.PersistentFlags().Duration("timeout", 5*time.Minute, "Request timeout")
	slCheckHistoryCmd.Flags().Int("limit", 0, "Number of passes to show (0 uses the server default)")
	slCheckHistoryCmd.Flags().String("app", "", "Only show events of this app")
}
