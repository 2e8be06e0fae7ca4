package commands

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycoin/datalink/cmd/datalink-cli/internal"
	"github.com/skycoin/datalink/internal/httputil"
	"github.com/skycoin/datalink/pkg/arq"
	"github.com/skycoin/datalink/pkg/node"
)

func init() {
	rootCmd.AddCommand(
		sessionsCmd,
		resetCmd,
		runsCmd,
		runCmd,
	)
}

var client = &http.Client{Timeout: 30 * time.Second}

func apiCall(method, path string, v interface{}) {
	req, err := http.NewRequest(method, fmt.Sprintf("http://%s/api%s", apiAddr, path), nil)
	internal.Catch(err)
	resp, err := client.Do(req)
	internal.Catch(err, "request failed:")
	defer func() { _ = resp.Body.Close() }() //nolint:errcheck
	internal.Catch(httputil.ReadJSON(resp, v))
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Lists the peers connected to the node",
	Run: func(_ *cobra.Command, _ []string) {
		var sessions []node.SessionInfo
		apiCall(http.MethodGet, "/sessions", &sessions)
		printSessions(sessions...)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <session-id>",
	Short: "Restarts the transfer of a connected peer",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		id := internal.ParseUUID("session-id", args[0])
		var info node.SessionInfo
		apiCall(http.MethodPost, "/sessions/"+id.String()+"/reset", &info)
		printSessions(info)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Lists finished runs, newest first",
	Run: func(_ *cobra.Command, _ []string) {
		var runs []arq.RunSummary
		apiCall(http.MethodGet, "/runs", &runs)
		printRuns(runs...)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Returns summary of given run by id",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		id := internal.ParseUUID("run-id", args[0])
		var run arq.RunSummary
		apiCall(http.MethodGet, "/runs/"+id.String(), &run)
		printRuns(run)
		fmt.Println("digest:", run.Digest)
	},
}

func printSessions(sessions ...node.SessionInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
	_, err := fmt.Fprintln(w, "id\tremote\tmode\tstate\tsent\tin_flight\tdelivered\tconnected")
	internal.Catch(err, "write:")
	for _, s := range sessions {
		_, err = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%v\t%d\t%s\n", s.ID, s.Remote, s.Mode, s.State,
			s.Sent, s.Total, s.InFlight, s.Delivered, s.Connected.Format(time.RFC3339))
		internal.Catch(err, "write:")
	}
	internal.Catch(w.Flush(), "flush:")
}

func printRuns(runs ...arq.RunSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 5, ' ', tabwriter.TabIndent)
	_, err := fmt.Fprintln(w, "id\tmode\tunits\tduration\tsent\tresent\tdropped\ttimeouts")
	internal.Catch(err, "write:")
	for _, r := range runs {
		_, err = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%d\n", r.ID, r.Mode, r.Units, r.Duration(),
			r.Stats.FramesSent, r.Stats.Retransmitted, r.Stats.FramesDropped, r.Stats.Timeouts)
		internal.Catch(err, "write:")
	}
	internal.Catch(w.Flush(), "flush:")
}
