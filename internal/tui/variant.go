package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
	"github.com/Metaculus/metaculus-sub005/internal/quota"
)

// Layout renders a workbench snapshot. Implementations are stateless.
type Layout interface {
	Name() string
	Render(v viewModel) string
}

// Layout names accepted by SelectLayout.
const (
	LayoutCompact  = "compact"
	LayoutDetailed = "detailed"
	LayoutConsumer = "consumer"
)

// SelectLayout maps a flag value to a renderer. Unknown values fall back to
// the detailed layout.
func SelectLayout(flag string) Layout {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case LayoutCompact:
		return compactLayout{}
	case LayoutConsumer:
		return consumerLayout{}
	default:
		return detailedLayout{}
	}
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
	tabStyle      = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#CCCCCC"))
	activeTab     = tabStyle.Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Underline(true)
)

func panelStyle(focused bool, width int) lipgloss.Style {
	border := lipgloss.Color("#444444")
	if focused {
		border = lipgloss.Color("#5B8DEF")
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Padding(0, 1).
		Width(max(24, width))
}

// viewModel is everything a Layout needs, captured once per frame.
type viewModel struct {
	Title       string
	CommentID   int64
	Private     bool
	Kind        keyfactor.Kind
	Focus       pane
	Editing     bool
	Busy        bool
	Spinner     string
	Width       int
	Rows        []rowView
	Input       string
	InputErr    string
	Commentary  string
	CommentBox  string
	NeedComment bool
	Suggestions []suggestionView
	Loading     bool
	SuggestErr  string
	Dismissed   bool
	Factors     []factorView
	Quota       quota.Quota
	Errors      []string
	Preview     string
	Status      string
	Live        bool
	LiveEvents  int
	Help        string
	Log         []string
	LogTotal    int
}

type rowView struct {
	Header   string
	Label    string
	Value    string
	Error    string
	Choice   bool
	Selected bool
}

type suggestionView struct {
	Kind     keyfactor.Kind
	Text     string
	Selected bool
}

type factorView struct {
	Kind     keyfactor.Kind
	Text     string
	Score    float64
	Count    int
	UserVote int
	Selected bool
}

func (a *App) snapshot() viewModel {
	s := a.session
	post := s.Post()
	v := viewModel{
		Title:       post.Title,
		CommentID:   s.CommentID(),
		Private:     s.IsPrivate(),
		Kind:        a.kind,
		Focus:       a.focus,
		Editing:     a.editing != nil,
		Busy:        a.busy || s.Pending(),
		Spinner:     a.spinner.View(),
		Width:       a.width,
		Commentary:  s.Commentary(),
		NeedComment: s.RequiresCommentary(),
		Loading:     s.Suggestions().Loading(),
		Dismissed:   a.dismissed.Load(),
		Quota:       s.Quota(),
		Status:      a.statusMsg,
		Live:        a.feedEvents != nil,
		LiveEvents:  a.feedSeen,
		Help:        a.help.View(a.keys),
	}
	if a.mode == modeCommentary {
		v.CommentBox = a.commentary.View()
	}
	if a.mode == modeEditField {
		v.Input = a.input.View()
		v.InputErr = a.inputErr
	}

	showErrors := s.ShowErrors()
	var last keyfactor.Draft
	for i, row := range a.rows() {
		rv := rowView{
			Label:    row.field.label,
			Value:    row.field.get(),
			Choice:   row.field.isChoice(),
			Selected: a.focus == paneDrafts && i == a.cursor[paneDrafts],
		}
		if row.draft != last {
			rv.Header = draftHeader(row, a.editing != nil)
			last = row.draft
		}
		if showErrors || !row.draft.IsEmpty() || (a.editing != nil && a.editing.ShowErrors) {
			rv.Error = s.Validate(row.draft).Error(row.field.key)
		}
		v.Rows = append(v.Rows, rv)
	}

	for i, d := range s.Suggestions().Items() {
		v.Suggestions = append(v.Suggestions, suggestionView{
			Kind:     d.Kind(),
			Text:     keyfactor.Summary(d),
			Selected: a.focus == paneSuggestions && i == a.cursor[paneSuggestions],
		})
	}
	if err := s.SuggestionError(); err != nil {
		v.SuggestErr = err.Error()
	}
	for i, kf := range s.Store().Ranked() {
		v.Factors = append(v.Factors, factorView{
			Kind:     kf.Kind(),
			Text:     keyfactor.Summary(kf.Draft),
			Score:    kf.Vote.Score,
			Count:    kf.Vote.Count,
			UserVote: kf.Vote.UserVote,
			Selected: a.focus == paneKeyFactors && i == a.cursor[paneKeyFactors],
		})
	}
	if err := s.Err(); err != nil {
		v.Errors = err.Messages()
	}
	v.Preview = previewLine(a.previewState)
	if a.logbook != nil {
		v.Log, v.LogTotal = a.logbook.Tail(logPanelLines)
	}
	return v
}

func draftHeader(row draftRow, editing bool) string {
	if editing {
		return "Suggested " + strings.ToLower(kindLabel(row.draft.Kind()))
	}
	return fmt.Sprintf("%s #%d", kindLabel(row.draft.Kind()), row.index+1)
}

func previewLine(state preview.State) string {
	switch {
	case state.URL == "":
		return ""
	case state.Loading:
		return "Fetching preview for " + state.URL
	case state.Err != nil:
		return "Preview unavailable"
	case state.Article != nil:
		line := state.Article.Title
		if state.Article.Source != "" {
			line += " · " + state.Article.Source
		}
		return line
	}
	return ""
}

func renderTabs(active keyfactor.Kind) string {
	var tabs []string
	for _, k := range keyfactor.Kinds {
		style := tabStyle
		if k == active {
			style = activeTab
		}
		tabs = append(tabs, style.Render(kindLabel(k)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func renderRows(v viewModel) string {
	if len(v.Rows) == 0 {
		return mutedStyle.Render("No drafts of this type. Press a to add one.")
	}
	var lines []string
	for _, r := range v.Rows {
		if r.Header != "" {
			lines = append(lines, titleStyle.Render(r.Header))
		}
		value := r.Value
		if value == "" {
			value = mutedStyle.Render("—")
		}
		if r.Choice {
			value = "‹ " + value + " ›"
		}
		line := fmt.Sprintf("  %s: %s", r.Label, value)
		if r.Selected {
			line = selectedStyle.Render("▸ " + strings.TrimPrefix(line, "  "))
		}
		lines = append(lines, line)
		if r.Error != "" {
			lines = append(lines, errorStyle.Render("    ⚠ "+r.Error))
		}
	}
	if v.Input != "" {
		lines = append(lines, "", v.Input)
		if v.InputErr != "" {
			lines = append(lines, errorStyle.Render(v.InputErr))
		}
	}
	return strings.Join(lines, "\n")
}

func renderSuggestions(v viewModel) string {
	switch {
	case v.Loading:
		return v.Spinner + " Loading suggestions…"
	case v.SuggestErr != "":
		return errorStyle.Render("Suggestions unavailable: " + v.SuggestErr)
	case len(v.Suggestions) == 0 && v.Dismissed:
		return okStyle.Render("All suggestions reviewed.")
	case len(v.Suggestions) == 0:
		return mutedStyle.Render("No suggestions.")
	}
	var lines []string
	for i, s := range v.Suggestions {
		line := fmt.Sprintf("%d. [%s] %s", i+1, kindLabel(s.Kind), s.Text)
		if s.Selected {
			line = selectedStyle.Render("▸ " + line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderFactors(v viewModel, withVotes bool) string {
	if len(v.Factors) == 0 {
		return mutedStyle.Render("No key factors yet.")
	}
	var lines []string
	for _, f := range v.Factors {
		line := fmt.Sprintf("[%s] %s", kindLabel(f.Kind), f.Text)
		if withVotes {
			mark := " "
			switch {
			case f.UserVote > 0:
				mark = okStyle.Render("▲")
			case f.UserVote < 0:
				mark = errorStyle.Render("▼")
			}
			line = fmt.Sprintf("%s %+g (%d) %s", mark, f.Score, f.Count, line)
		}
		if f.Selected {
			line = selectedStyle.Render("▸ " + line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderQuota(q quota.Quota) string {
	if msg := q.Message(); msg != "" {
		return warnStyle.Render(msg)
	}
	scope := "for this question"
	if q.Scope.CommentID != 0 {
		scope = "on this comment"
	}
	return mutedStyle.Render(fmt.Sprintf("%d key factor(s) left %s · up to %d per submission", q.FactorsLimit, scope, q.MaxDrafts()))
}

func renderCommentary(v viewModel) string {
	if !v.NeedComment {
		return mutedStyle.Render(fmt.Sprintf("Adding to comment #%d", v.CommentID))
	}
	if v.CommentBox != "" {
		return v.CommentBox + "\n" + hintStyle.Render("esc → done")
	}
	text := strings.TrimSpace(v.Commentary)
	if text == "" {
		text = mutedStyle.Render("No comment text yet. Press c to write it.")
	}
	privacy := "public"
	if v.Private {
		privacy = "private"
	}
	return text + "\n" + mutedStyle.Render("New "+privacy+" comment")
}

func renderErrors(v viewModel) string {
	if len(v.Errors) == 0 {
		return ""
	}
	lines := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		lines[i] = "⚠ " + e
	}
	return errorStyle.Render(strings.Join(lines, "\n"))
}

func renderLog(v viewModel) string {
	if len(v.Log) == 0 {
		return ""
	}
	title := mutedStyle.Render(fmt.Sprintf("Activity (%d/%d)", len(v.Log), v.LogTotal))
	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), true, false, false, false).
		BorderForeground(lipgloss.Color("#444444")).
		MarginTop(1).
		Render(title + "\n" + hintStyle.Render(strings.Join(v.Log, "\n")))
}

func renderStatus(v viewModel) string {
	status := v.Status
	if v.Busy {
		status = v.Spinner + " " + status
	}
	if v.Live {
		status += fmt.Sprintf("  · live (%d updates)", v.LiveEvents)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1).Render(status)
}

func joinSections(sections ...string) string {
	var out []string
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

// detailedLayout shows every panel: drafts beside suggestions, then the
// persisted key factors with their votes.
type detailedLayout struct{}

func (detailedLayout) Name() string { return LayoutDetailed }

func (detailedLayout) Render(v viewModel) string {
	width := v.Width
	if width <= 0 {
		width = 100
	}
	half := width/2 - 4
	draftTitle := "Drafts"
	if v.Editing {
		draftTitle = "Editing suggestion · a apply · esc discard"
	}
	drafts := panelStyle(v.Focus == paneDrafts, half).Render(joinSections(
		titleStyle.Render(draftTitle),
		renderRows(v),
		hintStyle.Render(v.Preview),
	))
	suggestions := panelStyle(v.Focus == paneSuggestions, half).Render(joinSections(
		titleStyle.Render("Suggestions"),
		renderSuggestions(v),
		hintStyle.Render("enter accept · e edit · x reject"),
	))
	factors := panelStyle(v.Focus == paneKeyFactors, width-4).Render(joinSections(
		titleStyle.Render("Key factors"),
		renderFactors(v, true),
	))
	return joinSections(
		titleStyle.Render(v.Title),
		renderTabs(v.Kind),
		renderCommentary(v),
		lipgloss.JoinHorizontal(lipgloss.Top, drafts, suggestions),
		factors,
		renderQuota(v.Quota),
		renderErrors(v),
		renderLog(v),
		renderStatus(v),
		v.Help,
	)
}

// compactLayout is a single column without the journal or the key factor
// list.
type compactLayout struct{}

func (compactLayout) Name() string { return LayoutCompact }

func (compactLayout) Render(v viewModel) string {
	header := fmt.Sprintf("%s · %s", v.Title, kindLabel(v.Kind))
	var pending string
	if n := len(v.Suggestions); n > 0 {
		pending = hintStyle.Render(fmt.Sprintf("%d suggestion(s) · tab to review", n))
	}
	body := renderRows(v)
	if v.Focus == paneSuggestions {
		body = renderSuggestions(v)
	}
	return joinSections(
		titleStyle.Render(header),
		renderCommentary(v),
		body,
		pending,
		renderQuota(v.Quota),
		renderErrors(v),
		renderStatus(v),
	)
}

// consumerLayout leads with the persisted key factors and their votes; the
// drafting panels follow below.
type consumerLayout struct{}

func (consumerLayout) Name() string { return LayoutConsumer }

func (consumerLayout) Render(v viewModel) string {
	width := v.Width
	if width <= 0 {
		width = 80
	}
	factors := panelStyle(v.Focus == paneKeyFactors, width-4).Render(joinSections(
		titleStyle.Render(fmt.Sprintf("Key factors (%d)", len(v.Factors))),
		renderFactors(v, true),
		hintStyle.Render("+ agree · - disagree · v rate strength"),
	))
	drafting := panelStyle(v.Focus != paneKeyFactors, width-4).Render(joinSections(
		renderTabs(v.Kind),
		renderRows(v),
		renderSuggestions(v),
	))
	return joinSections(
		titleStyle.Render(v.Title),
		factors,
		drafting,
		renderErrors(v),
		renderStatus(v),
		v.Help,
	)
}
