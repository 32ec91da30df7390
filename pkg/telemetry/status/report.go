package status

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/pprof"
	"text/tabwriter"
	"time"

	"mercator-hq/dispatch/pkg/pool"
)

// Path is the HTTP socket path that serves the JSON snapshot.
const Path = "/status"

// Snapshot is a point-in-time view of a request handler.
type Snapshot struct {
	Time            time.Time       `json:"time"`
	AppGroupName    string          `json:"app_group_name"`
	Generation      uint64          `json:"generation"`
	Iterations      uint64          `json:"iterations"`
	MainLoopRunning bool            `json:"main_loop_running"`
	SoftShutdown    string          `json:"soft_shutdown"`
	Endpoints       []string        `json:"endpoints"`
	Workers         []pool.SlotInfo `json:"workers"`
}

// IdleWorkers counts the idle slots in the snapshot.
func (s Snapshot) IdleWorkers() int {
	n := 0
	for _, w := range s.Workers {
		if w.Idle {
			n++
		}
	}
	return n
}

// Source produces snapshots.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Snapshot

// Snapshot calls f.
func (f SourceFunc) Snapshot() Snapshot { return f() }

// Write renders s as text. With stacks set, the goroutine profile in its
// most verbose form follows the inventory.
func Write(w io.Writer, s Snapshot, stacks bool) error {
	fmt.Fprintf(w, "### Request handler status (%s)\n", s.Time.Format(time.RFC3339))
	fmt.Fprintf(w, "App group:      %s\n", s.AppGroupName)
	fmt.Fprintf(w, "Main loop:      running=%t generation=%d iterations=%d\n",
		s.MainLoopRunning, s.Generation, s.Iterations)
	fmt.Fprintf(w, "Soft shutdown:  %s\n", s.SoftShutdown)
	for _, ep := range s.Endpoints {
		fmt.Fprintf(w, "Endpoint:       %s\n", ep)
	}

	fmt.Fprintf(w, "\n### Workers (%d live, %d idle)\n", len(s.Workers), s.IdleWorkers())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tENDPOINT\tIDLE\tSTARTED")
	for _, slot := range s.Workers {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%s\n",
			slot.ID, slot.Name, slot.Endpoint, slot.Idle, slot.Started.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !stacks {
		return nil
	}
	fmt.Fprintln(w, "\n### Goroutines")
	return pprof.Lookup("goroutine").WriteTo(w, 2)
}

// Handler serves the current snapshot as JSON.
func Handler(src Source) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			return
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(src.Snapshot())
	})
}
