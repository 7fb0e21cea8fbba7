package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
)

const entryPreviewLen = 60

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// ClusterTable renders clusters to w.
func ClusterTable(w io.Writer, clusters []domain.Cluster) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Cluster", "Dates", "Edges"})
	for _, c := range clusters {
		t.AppendRow(table.Row{c.ClusterID, strings.Join(c.MemberDates, ", "), len(c.MemberEdgeIDs)})
	}
	t.AppendFooter(table.Row{"Total", len(clusters), ""})
	t.Render()
}

// RecordTable renders one line per record to w.
func RecordTable(w io.Writer, recs []domain.DailyRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Date", "Resolution", "Tier", "Entry", "Notes"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, WidthMax: entryPreviewLen, WidthMaxEnforcer: text.WrapSoft},
	})
	for i := range recs {
		rec := &recs[i]
		t.AppendRow(table.Row{
			rec.Date,
			resolutionLabel(rec.ResolutionMode),
			string(rec.SelectedTier),
			rec.GeneratedText,
			strings.Join(Notes(rec), "; "),
		})
	}
	t.Render()
}

// BatchTable renders a batch summary to w.
func BatchTable(w io.Writer, job string, res domain.BatchResult) {
	t := newTable(w)
	t.SetTitle(fmt.Sprintf("%s run %s", job, res.RunID))
	t.AppendHeader(table.Row{"Total", "Succeeded", "Failed", "Stopped early", "Remaining"})
	t.AppendRow(table.Row{res.Total, res.Succeeded, res.Failed, res.StoppedEarly, len(res.Remaining)})
	t.Render()
}

// StatusTable renders live job status to w.
func StatusTable(w io.Writer, statuses []pipeline.JobStatus) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Job", "Running", "Processed", "Total", "Run", "Last result"})
	for _, st := range statuses {
		last := "-"
		if st.Last != nil {
			last = fmt.Sprintf("%d ok, %d failed", st.Last.Succeeded, st.Last.Failed)
		}
		t.AppendRow(table.Row{
			st.Job,
			st.Progress.IsRunning,
			st.Progress.Processed,
			st.Progress.Total,
			st.RunID,
			last,
		})
	}
	t.Render()
}
