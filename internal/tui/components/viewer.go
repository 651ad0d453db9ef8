package components

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/tui/styles"
	"github.com/mmcdole/glimpse/internal/viewer"
)

// spinnerFrames animate pending media
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// ViewerPane renders a viewer snapshot: a canvas standing in for the media,
// scaled and offset by the zoom and pan, plus an info line
type ViewerPane struct {
	state    viewer.State
	viewport viewer.Size
	frame    int
	width    int
	height   int
}

// NewViewerPane creates a pane for a viewport of the given logical size
func NewViewerPane(viewport viewer.Size) ViewerPane {
	return ViewerPane{viewport: viewport}
}

// SetState updates the displayed snapshot
func (p *ViewerPane) SetState(s viewer.State) { p.state = s }

// SetSpinnerFrame advances the pending animation
func (p *ViewerPane) SetSpinnerFrame(frame int) { p.frame = frame }

// SetSize updates the component dimensions
func (p *ViewerPane) SetSize(width, height int) {
	p.width = width
	p.height = height
}

// View renders the component
func (p ViewerPane) View() string {
	frameW, frameH := styles.ViewerFrameStyle.GetFrameSize()
	innerW, innerH := p.width-frameW, p.height-frameH
	if innerW < 10 || innerH < 4 {
		return ""
	}

	header := p.header()
	footer := p.footer()
	canvasH := innerH - 2
	body := p.canvas(innerW, canvasH)

	return styles.ViewerFrameStyle.
		Width(innerW).
		Height(innerH).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body, footer))
}

func (p ViewerPane) header() string {
	s := p.state
	title := styles.TitleStyle.Render(s.Asset.ID)
	pos := styles.DimStyle.Render(fmt.Sprintf("%d / %d", s.CurrentIndex+1, s.Count))
	parts := []string{title, pos}
	if badge := s.Asset.Badge(); badge != "" {
		parts = append(parts, styles.BadgeStyle.Render(badge))
	}
	if s.Asset.CreatedAt != nil {
		parts = append(parts, styles.SubtitleStyle.Render(s.Asset.CreatedAt.Local().Format("Jan 2, 2006 15:04")))
	}
	return strings.Join(parts, "  ")
}

func (p ViewerPane) footer() string {
	s := p.state
	zoom := fmt.Sprintf("%.0f%%", s.ZoomScale*100)
	info := []string{
		styles.DimBadgeStyle.Render(s.Phase.String()),
		styles.AccentStyle.Render(zoom),
	}
	if s.ZoomScale > 1 {
		info = append(info, styles.DimStyle.Render(fmt.Sprintf("pan %.0f,%.0f", s.Pan.X, s.Pan.Y)))
	}
	if s.Direction != viewer.DirectionNone {
		info = append(info, styles.DimStyle.Render(s.Direction.String()))
	}
	return strings.Join(info, " ")
}

// canvas draws the media rectangle. Zoom grows it around the center and pan
// shifts it, both scaled from viewport units to cells.
func (p ViewerPane) canvas(w, h int) string {
	s := p.state
	if h < 1 {
		return ""
	}

	var label string
	switch {
	case s.Pending():
		label = spinnerFrames[p.frame%len(spinnerFrames)] + " loading"
	case s.Failure != nil:
		label = styles.ErrorStyle.Render(failureText(s.Failure)) + styles.DimStyle.Render("  (r to retry)")
	default:
		label = mediaText(s.Media)
	}
	if s.Pending() || s.Failure != nil {
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, label)
	}

	zoom := s.ZoomScale
	if zoom < 1 || math.IsNaN(zoom) {
		zoom = 1
	}
	boxW := int(float64(w) * 0.6 * zoom)
	boxH := int(float64(h) * 0.6 * zoom)
	if boxW > w {
		boxW = w
	}
	if boxH > h {
		boxH = h
	}
	if boxW < 1 || boxH < 1 {
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, label)
	}

	dx, dy := 0, 0
	if p.viewport.Width > 0 && p.viewport.Height > 0 {
		dx = int(s.Pan.X / p.viewport.Width * float64(w))
		dy = int(s.Pan.Y / p.viewport.Height * float64(h))
	}

	box := styles.CanvasStyle.
		Width(boxW).
		Height(boxH).
		Align(lipgloss.Center, lipgloss.Center).
		Render(label)

	left := (w-boxW)/2 + dx
	top := (h-boxH)/2 + dy
	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	return lipgloss.NewStyle().
		Width(w).
		Height(h).
		MaxWidth(w).
		MaxHeight(h).
		PaddingLeft(left).
		PaddingTop(top).
		Render(box)
}

func mediaText(m domain.MediaPayload) string {
	switch v := m.(type) {
	case domain.DecodedImage:
		return fmt.Sprintf("image %dx%d", v.Width, v.Height)
	case domain.PlayableVideo:
		return fmt.Sprintf("▶ %s", v.Handle.Location())
	default:
		return ""
	}
}

func failureText(err error) string {
	if errors.Is(err, domain.ErrDecodeFailed) {
		return "Could not load this item"
	}
	return err.Error()
}
