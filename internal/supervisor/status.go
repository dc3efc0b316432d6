package supervisor

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"signalscribe/internal/job"
	"signalscribe/internal/queue"
)

var (
	listeningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	queueNameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	countStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	elapsedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// statusDisplay is the live multi-line readout: a "listening" line while
// the pipeline is idle, per-queue pending counts while it is not.
type statusDisplay struct {
	watchDir    string
	decodeQ     *queue.TrackedQueue[*job.Job]
	transcribeQ *queue.TrackedQueue[*job.Job]

	start     time.Time
	stop      chan struct{}
	done      chan struct{}
	prevLines int
}

func newStatusDisplay(watchDir string, decodeQ, transcribeQ *queue.TrackedQueue[*job.Job]) *statusDisplay {
	return &statusDisplay{
		watchDir:    watchDir,
		decodeQ:     decodeQ,
		transcribeQ: transcribeQ,
		start:       time.Now(),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// run refreshes the display at ~10 Hz until Stop.
func (d *statusDisplay) run() {
	defer close(d.done)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			d.erase()
			return
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *statusDisplay) Stop() {
	close(d.stop)
	<-d.done
}

func (d *statusDisplay) render() {
	d.erase()

	var lines []string
	decoding := d.decodeQ.Size()
	transcribing := d.transcribeQ.Size()

	if decoding == 0 && transcribing == 0 {
		elapsed := time.Since(d.start).Round(time.Second)
		lines = append(lines, fmt.Sprintf("%s %s",
			listeningStyle.Render("Listening to "+d.watchDir),
			elapsedStyle.Render("("+elapsed.String()+")")))
	} else {
		if decoding > 0 {
			lines = append(lines, fmt.Sprintf("%s %s pending",
				queueNameStyle.Render("Decoding:"),
				countStyle.Render(fmt.Sprintf("%d", decoding))))
		}
		if transcribing > 0 {
			lines = append(lines, fmt.Sprintf("%s %s pending",
				queueNameStyle.Render("Transcribing:"),
				countStyle.Render(fmt.Sprintf("%d", transcribing))))
		}
	}

	for _, line := range lines {
		fmt.Println(line)
	}
	d.prevLines = len(lines)
}

// erase clears the previously rendered block so the next render replaces
// it in place.
func (d *statusDisplay) erase() {
	if d.prevLines > 0 {
		fmt.Printf("\x1b[%dA\x1b[J", d.prevLines)
		d.prevLines = 0
	}
}
