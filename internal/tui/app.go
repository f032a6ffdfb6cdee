// internal/tui/app.go
//
// The terminal host for a workbench session. It follows The Elm Architecture
// like every bubbletea program:
//
// 1. Model: App holds the mounted session plus cursor and editor state
// 2. Update: key presses and finished collaborator calls arrive as messages
// 3. View: the selected Layout renders a snapshot of the model
//
// Collaborator calls run inside tea.Cmds so the UI never blocks on the network.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Metaculus/metaculus-sub005/internal/feed"
	"github.com/Metaculus/metaculus-sub005/internal/keyfactor"
	"github.com/Metaculus/metaculus-sub005/internal/logbook"
	"github.com/Metaculus/metaculus-sub005/internal/platform"
	"github.com/Metaculus/metaculus-sub005/internal/preview"
	"github.com/Metaculus/metaculus-sub005/internal/suggestion"
	"github.com/Metaculus/metaculus-sub005/internal/workbench"
)

// pane is the panel that owns the cursor.
type pane int

const (
	paneDrafts pane = iota
	paneSuggestions
	paneKeyFactors
)

// mode is what the keyboard is currently driving.
type mode int

const (
	modeBrowse     mode = iota // moving between rows
	modeEditField              // line editor open on a draft field
	modeCommentary             // comment text area focused
)

const (
	defaultCallTimeout = 15 * time.Second
	logPanelLines      = 6
)

var strengthVotes = []int{0, 1, 2, 5}

type refreshFinishedMsg struct{ err error }

type suggestionsLoadedMsg struct{ err error }

type submitFinishedMsg struct {
	kind    keyfactor.Kind
	outcome workbench.Outcome
	err     error
}

type acceptFinishedMsg struct {
	index  int
	result suggestion.AcceptResult
	err    error
}

type voteFinishedMsg struct {
	id  int64
	agg keyfactor.VoteAggregate
	err error
}

type previewMsg preview.State

type feedMsg feed.Event

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook attaches the activity journal shown in the footer.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		if lb != nil {
			a.logbook = lb
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *zap.Logger) AppOption {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLayout picks the renderer. See SelectLayout.
func WithLayout(l Layout) AppOption {
	return func(a *App) {
		if l != nil {
			a.layout = l
		}
	}
}

// WithPreview enables news previews through fetcher, debounced by delay.
func WithPreview(fetcher preview.Fetcher, delay time.Duration) AppOption {
	return func(a *App) {
		a.previewFetcher = fetcher
		a.previewDelay = delay
	}
}

// WithFeed shares the key factor store through router and keeps the view
// in step with every change published on it.
func WithFeed(router *feed.Router) AppOption {
	return func(a *App) {
		a.feed = router
	}
}

// WithCallTimeout bounds every collaborator call.
func WithCallTimeout(d time.Duration) AppOption {
	return func(a *App) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// App is the workbench model. In bubbletea, this holds ALL the UI state;
// domain state lives in the session.
type App struct {
	ctx     context.Context
	session *workbench.Session
	client  platform.Client
	logbook *logbook.Logbook
	logger  *zap.Logger
	layout  Layout
	timeout time.Duration

	previewFetcher preview.Fetcher
	previewDelay   time.Duration
	previewer      *preview.Previewer
	previewUpdates chan preview.State
	previewState   preview.State
	previewDraft   *keyfactor.NewsDraft

	feed       *feed.Router
	feedSub    feed.Subscription
	feedEvents <-chan feed.Event

	dismissed atomic.Bool

	kind     keyfactor.Kind
	focus    pane
	mode     mode
	cursor   map[pane]int
	editing  *suggestion.EditingSession
	busy     bool
	editRow  int
	inputErr string

	input      textinput.Model
	commentary textarea.Model
	spinner    spinner.Model
	help       help.Model
	keys       keyMap

	statusMsg string
	feedSeen  int
	width     int
	height    int
}

// NewApp mounts a workbench session for cfg against client.
func NewApp(ctx context.Context, cfg workbench.Config, client platform.Client, opts ...AppOption) *App {
	if ctx == nil {
		ctx = context.Background()
	}
	a := &App{
		ctx:     ctx,
		client:  client,
		logger:  zap.NewNop(),
		layout:  detailedLayout{},
		timeout: defaultCallTimeout,
		kind:    keyfactor.KindDriver,
		cursor:  map[pane]int{},
		keys:    defaultKeyMap(),
		help:    help.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	sessionOpts := []workbench.Option{
		workbench.WithLogger(a.logger.Named("workbench")),
		workbench.WithDismissHandler(func() { a.dismissed.Store(true) }),
	}
	if a.logbook != nil {
		sessionOpts = append(sessionOpts, workbench.WithJournal(a.logbook))
	}
	var store *workbench.Store
	if a.feed != nil {
		store = workbench.NewStore(cfg.Post.ID, a.feed)
		a.feedSub = a.feed.Subscribe(cfg.Post.ID)
		a.feedEvents = a.feedSub.Events
	}
	a.session = workbench.NewSession(cfg, client, store, sessionOpts...)

	if a.previewFetcher != nil {
		a.previewUpdates = make(chan preview.State, 1)
		popts := []preview.Option{
			preview.WithUpdateHandler(a.pushPreview),
			preview.WithLogger(a.logger.Named("preview")),
		}
		if a.previewDelay > 0 {
			popts = append(popts, preview.WithDelay(a.previewDelay))
		}
		a.previewer = preview.NewPreviewer(a.previewFetcher, popts...)
	}

	a.input = textinput.New()
	a.input.Prompt = "› "
	a.input.CharLimit = 500

	a.commentary = textarea.New()
	a.commentary.Placeholder = "Why do these factors matter for the forecast?"
	a.commentary.SetHeight(4)
	a.commentary.SetWidth(72)

	a.spinner = spinner.New()
	a.spinner.Spinner = spinner.Dot

	a.statusMsg = "Pick a factor type with t, edit with enter, submit with s."
	a.logInfo("Workbench opened for post %d", cfg.Post.ID)
	return a
}

// Session exposes the mounted session.
func (a *App) Session() *workbench.Session {
	return a.session
}

// Close stops the previewer. The program must have exited.
func (a *App) Close() {
	if a.previewer != nil {
		a.previewer.Close()
		close(a.previewUpdates)
		a.previewer = nil
	}
	if a.feedEvents != nil {
		a.feedSub.Close()
		a.feedEvents = nil
	}
}

// Init loads the persisted key factors and any suggestions.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{a.refreshCmd(), a.loadSuggestionsCmd(false), a.spinner.Tick}
	if a.previewUpdates != nil {
		cmds = append(cmds, a.waitForPreview())
	}
	if a.feedEvents != nil {
		cmds = append(cmds, a.waitForFeed())
	}
	return tea.Batch(cmds...)
}

// Update handles all messages.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.commentary.SetWidth(max(20, msg.Width-4))
		a.help.Width = msg.Width
		return a, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	case refreshFinishedMsg:
		if msg.err != nil {
			a.setError("Could not load key factors", msg.err)
		}
		return a, nil
	case suggestionsLoadedMsg:
		if msg.err != nil {
			a.setError("Could not load suggestions", msg.err)
		} else if n := a.session.Suggestions().Len(); n > 0 {
			a.dismissed.Store(false)
			a.statusMsg = fmt.Sprintf("%d suggestion(s) ready for review", n)
		}
		return a, nil
	case submitFinishedMsg:
		return a, a.handleSubmitFinished(msg)
	case acceptFinishedMsg:
		return a, a.handleAcceptFinished(msg)
	case voteFinishedMsg:
		a.busy = false
		if msg.err != nil {
			a.setError("Vote failed", msg.err)
			return a, nil
		}
		a.statusMsg = fmt.Sprintf("Vote recorded · score %g from %d vote(s)", msg.agg.Score, msg.agg.Count)
		return a, nil
	case previewMsg:
		a.applyPreview(preview.State(msg))
		return a, a.waitForPreview()
	case feedMsg:
		a.applyFeedEvent(feed.Event(msg))
		return a, a.waitForFeed()
	case tea.KeyMsg:
		return a, a.handleKey(msg)
	}
	if a.mode == modeCommentary {
		var cmd tea.Cmd
		a.commentary, cmd = a.commentary.Update(msg)
		return a, cmd
	}
	if a.mode == modeEditField {
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, cmd
	}
	return a, nil
}

// View renders the model with the selected layout.
func (a *App) View() string {
	return a.layout.Render(a.snapshot())
}

func (a *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		return tea.Quit
	}
	switch a.mode {
	case modeEditField:
		return a.handleFieldKey(msg)
	case modeCommentary:
		return a.handleCommentaryKey(msg)
	}
	keys := a.keys
	switch {
	case matches(msg, keys.Quit):
		return tea.Quit
	case matches(msg, keys.NextPane):
		a.focus = (a.focus + 1) % 3
		return nil
	case matches(msg, keys.Up):
		a.moveCursor(-1)
		return nil
	case matches(msg, keys.Down):
		a.moveCursor(1)
		return nil
	case matches(msg, keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return nil
	case matches(msg, keys.Back):
		return a.back()
	}
	if a.busy || a.session.Pending() {
		a.statusMsg = "Waiting for the server…"
		return nil
	}
	switch {
	case matches(msg, keys.Kind):
		a.cycleKind()
	case matches(msg, keys.Comment):
		return a.openCommentary()
	case matches(msg, keys.Private):
		a.session.SetPrivate(!a.session.IsPrivate())
		if a.session.IsPrivate() {
			a.statusMsg = "New comment will be private"
		} else {
			a.statusMsg = "New comment will be public"
		}
	case matches(msg, keys.Submit):
		return a.submit()
	case matches(msg, keys.Reload):
		return a.loadSuggestionsCmd(true)
	case matches(msg, keys.Reset):
		a.session.Cancel()
		a.editing = nil
		a.cursor[paneDrafts] = 0
		a.statusMsg = "Drafts cleared"
	default:
		return a.handlePaneKey(msg)
	}
	return nil
}

func (a *App) handlePaneKey(msg tea.KeyMsg) tea.Cmd {
	keys := a.keys
	switch a.focus {
	case paneDrafts:
		switch {
		case matches(msg, keys.Enter):
			return a.editCurrentField()
		case a.editing != nil && matches(msg, keys.Apply):
			a.closeEditing(false)
		case matches(msg, keys.Add):
			a.addDraft()
		case matches(msg, keys.Remove):
			a.removeCurrentDraft()
		}
	case paneSuggestions:
		i := a.cursor[paneSuggestions]
		switch {
		case matches(msg, keys.Enter):
			return a.acceptSuggestion(i)
		case matches(msg, keys.Edit):
			a.pullSuggestion(i)
		case matches(msg, keys.Remove):
			a.rejectSuggestion(i)
		}
	case paneKeyFactors:
		switch {
		case matches(msg, keys.VoteUp):
			return a.voteCurrent(1, keyfactor.VoteDirection)
		case matches(msg, keys.VoteDown):
			return a.voteCurrent(-1, keyfactor.VoteDirection)
		case matches(msg, keys.VoteStrength):
			return a.voteCurrent(a.nextStrength(), keyfactor.VoteStrength)
		}
	}
	return nil
}

func (a *App) back() tea.Cmd {
	switch {
	case a.editing != nil:
		a.closeEditing(true)
	case a.session.Err() != nil:
		a.session.ClearError()
		a.statusMsg = "Error dismissed"
	default:
		a.statusMsg = ""
	}
	return nil
}

// rows lists the draft fields shown in the drafts pane. While a suggestion
// is open for editing only its fields are listed.
func (a *App) rows() []draftRow {
	post := a.session.Post()
	if a.editing != nil {
		var rows []draftRow
		for _, f := range fieldsFor(a.editing.Draft, post) {
			rows = append(rows, draftRow{index: -1, draft: a.editing.Draft, field: f})
		}
		return rows
	}
	var rows []draftRow
	for i, d := range a.session.Drafts() {
		if d.Kind() != a.kind {
			continue
		}
		for _, f := range fieldsFor(d, post) {
			rows = append(rows, draftRow{index: i, draft: d, field: f})
		}
	}
	return rows
}

type draftRow struct {
	index int
	draft keyfactor.Draft
	field field
}

func (a *App) paneLen(p pane) int {
	switch p {
	case paneDrafts:
		return len(a.rows())
	case paneSuggestions:
		return a.session.Suggestions().Len()
	case paneKeyFactors:
		return a.session.Store().Len()
	}
	return 0
}

func (a *App) moveCursor(delta int) {
	n := a.paneLen(a.focus)
	if n == 0 {
		a.cursor[a.focus] = 0
		return
	}
	next := a.cursor[a.focus] + delta
	if next < 0 {
		next = 0
	}
	if next >= n {
		next = n - 1
	}
	a.cursor[a.focus] = next
}

func (a *App) clampCursors() {
	for _, p := range []pane{paneDrafts, paneSuggestions, paneKeyFactors} {
		n := a.paneLen(p)
		if a.cursor[p] >= n {
			a.cursor[p] = max(0, n-1)
		}
	}
}

func (a *App) cycleKind() {
	for i, k := range keyfactor.Kinds {
		if k == a.kind {
			a.kind = keyfactor.Kinds[(i+1)%len(keyfactor.Kinds)]
			break
		}
	}
	if len(keyfactor.OfKind(a.session.Drafts(), a.kind)) == 0 {
		a.addDraft()
	}
	a.focus = paneDrafts
	a.cursor[paneDrafts] = 0
	a.statusMsg = fmt.Sprintf("Editing %s key factors", strings.ToLower(kindLabel(a.kind)))
}

func (a *App) addDraft() {
	if a.editing != nil {
		return
	}
	if _, err := a.session.AddDraft(a.kind); err != nil {
		a.setError("Cannot add another draft", err)
		return
	}
	a.statusMsg = fmt.Sprintf("Added a %s draft", strings.ToLower(kindLabel(a.kind)))
}

func (a *App) removeCurrentDraft() {
	rows := a.rows()
	if a.editing != nil || len(rows) == 0 {
		return
	}
	row := rows[a.cursor[paneDrafts]]
	if err := a.session.RemoveDraft(row.index); err != nil {
		a.setError("Cannot remove draft", err)
		return
	}
	a.clampCursors()
	a.statusMsg = "Draft removed"
}

func (a *App) editCurrentField() tea.Cmd {
	rows := a.rows()
	if len(rows) == 0 {
		return nil
	}
	idx := a.cursor[paneDrafts]
	row := rows[idx]
	if row.field.isChoice() {
		if err := row.field.set(row.field.next()); err != nil {
			a.setError("Invalid choice", err)
		}
		a.clampCursors()
		return nil
	}
	a.mode = modeEditField
	a.editRow = idx
	a.inputErr = ""
	a.input.SetValue(row.field.get())
	a.input.Placeholder = row.field.label
	a.input.CursorEnd()
	return a.input.Focus()
}

func (a *App) handleFieldKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.mode = modeBrowse
		a.input.Blur()
		a.inputErr = ""
		return nil
	case "enter":
		rows := a.rows()
		if a.editRow >= len(rows) {
			a.mode = modeBrowse
			a.input.Blur()
			return nil
		}
		row := rows[a.editRow]
		value := a.input.Value()
		if err := row.field.set(value); err != nil {
			a.inputErr = err.Error()
			return nil
		}
		a.mode = modeBrowse
		a.input.Blur()
		a.inputErr = ""
		if news, ok := row.draft.(*keyfactor.NewsDraft); ok && row.field.key == keyfactor.FieldURL {
			a.requestPreview(news)
		}
		return nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return cmd
}

func (a *App) openCommentary() tea.Cmd {
	if !a.session.RequiresCommentary() {
		a.statusMsg = "Key factors are added to your existing comment"
		return nil
	}
	a.mode = modeCommentary
	a.commentary.SetValue(a.session.Commentary())
	return a.commentary.Focus()
}

func (a *App) handleCommentaryKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "esc" {
		a.session.SetCommentary(a.commentary.Value())
		a.commentary.Blur()
		a.mode = modeBrowse
		a.statusMsg = "Comment text saved"
		return nil
	}
	var cmd tea.Cmd
	a.commentary, cmd = a.commentary.Update(msg)
	return cmd
}

func (a *App) submit() tea.Cmd {
	if a.editing != nil {
		a.statusMsg = "Apply or discard the open suggestion first"
		return nil
	}
	kind := a.kind
	a.busy = true
	a.statusMsg = fmt.Sprintf("Submitting %s key factors…", strings.ToLower(kindLabel(kind)))
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		outcome, err := a.session.Submit(ctx, kind, nil, nil)
		return submitFinishedMsg{kind: kind, outcome: outcome, err: err}
	}
}

func (a *App) handleSubmitFinished(msg submitFinishedMsg) tea.Cmd {
	a.busy = false
	if msg.err != nil {
		a.statusMsg = "Submission failed"
		return nil
	}
	if msg.outcome.Skipped {
		a.statusMsg = "A submission is already in progress"
		return nil
	}
	a.cursor[paneDrafts] = 0
	a.clampCursors()
	a.statusMsg = fmt.Sprintf("Submitted %d key factor(s)", msg.outcome.Sent)
	// A new comment can now receive suggestions.
	return a.loadSuggestionsCmd(false)
}

func (a *App) acceptSuggestion(i int) tea.Cmd {
	if a.session.Suggestions().Len() == 0 {
		return nil
	}
	a.busy = true
	a.statusMsg = "Submitting suggestion…"
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		res, err := a.session.AcceptSuggestion(ctx, i)
		return acceptFinishedMsg{index: i, result: res, err: err}
	}
}

func (a *App) handleAcceptFinished(msg acceptFinishedMsg) tea.Cmd {
	a.busy = false
	a.clampCursors()
	switch {
	case msg.result.Session != nil:
		a.editing = msg.result.Session
		a.focus = paneDrafts
		a.cursor[paneDrafts] = 0
		a.statusMsg = "Suggestion needs changes before it can be added"
	case msg.err != nil:
		a.setError("Could not add suggestion", msg.err)
	case msg.result.Submitted:
		a.statusMsg = "Suggestion added"
	}
	return nil
}

func (a *App) pullSuggestion(i int) {
	if a.editing != nil {
		a.statusMsg = "Finish the open suggestion first"
		return
	}
	es, err := a.session.Suggestions().PullForEditing(i)
	if err != nil {
		a.setError("Cannot edit suggestion", err)
		return
	}
	a.editing = es
	a.focus = paneDrafts
	a.cursor[paneDrafts] = 0
	a.clampCursors()
	a.statusMsg = "Editing suggestion · a to apply, esc to discard"
}

// closeEditing returns the open suggestion to the list, either edited or as
// it was before editing began.
func (a *App) closeEditing(discard bool) {
	if a.editing == nil {
		return
	}
	mgr := a.session.Suggestions()
	var err error
	if discard {
		_, err = mgr.Discard(a.editing.ID)
	} else {
		_, err = mgr.Apply(a.editing.ID)
	}
	a.editing = nil
	a.cursor[paneDrafts] = 0
	a.clampCursors()
	if err != nil {
		a.setError("Cannot close suggestion", err)
		return
	}
	if discard {
		a.statusMsg = "Suggestion restored"
		a.logInfo("Discarded edits to a suggestion")
	} else {
		a.statusMsg = "Suggestion updated"
		a.logInfo("Applied edits to a suggestion")
	}
}

func (a *App) rejectSuggestion(i int) {
	d, err := a.session.Suggestions().Reject(i)
	if err != nil {
		a.setError("Cannot reject suggestion", err)
		return
	}
	a.clampCursors()
	a.statusMsg = "Suggestion rejected"
	a.logWarn("Rejected suggestion: %s", keyfactor.Summary(d))
}

func (a *App) voteCurrent(vote int, voteType keyfactor.VoteType) tea.Cmd {
	factors := a.session.Store().Ranked()
	if len(factors) == 0 {
		return nil
	}
	kf := factors[min(a.cursor[paneKeyFactors], len(factors)-1)]
	if voteType == keyfactor.VoteDirection && kf.Vote.UserVote == vote {
		// Pressing the same direction again clears the vote.
		vote = 0
	}
	a.busy = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		agg, err := a.session.Vote(ctx, kf.ID, vote, voteType)
		return voteFinishedMsg{id: kf.ID, agg: agg, err: err}
	}
}

func (a *App) nextStrength() int {
	factors := a.session.Store().Ranked()
	if len(factors) == 0 {
		return 0
	}
	current := factors[min(a.cursor[paneKeyFactors], len(factors)-1)].Vote.UserVote
	for i, v := range strengthVotes {
		if v == current {
			return strengthVotes[(i+1)%len(strengthVotes)]
		}
	}
	return strengthVotes[1]
}

func (a *App) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		return refreshFinishedMsg{err: a.session.Refresh(ctx)}
	}
}

func (a *App) loadSuggestionsCmd(force bool) tea.Cmd {
	if a.session.CommentID() == 0 {
		if force {
			a.statusMsg = "Suggestions appear once your comment exists"
		}
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(a.ctx, a.timeout)
		defer cancel()
		return suggestionsLoadedMsg{err: a.session.LoadSuggestions(ctx, force)}
	}
}

func (a *App) requestPreview(d *keyfactor.NewsDraft) {
	if a.previewer == nil {
		return
	}
	a.previewDraft = d
	a.previewer.Request(d.URL)
}

// pushPreview runs on previewer goroutines and keeps only the newest state.
func (a *App) pushPreview(state preview.State) {
	for {
		select {
		case a.previewUpdates <- state:
			return
		default:
		}
		select {
		case <-a.previewUpdates:
		default:
		}
	}
}

func (a *App) waitForFeed() tea.Cmd {
	ch := a.feedEvents
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return feedMsg(event)
	}
}

// applyFeedEvent notes changes to the shared store. The view itself is
// re-rendered from the store after every message.
func (a *App) applyFeedEvent(event feed.Event) {
	a.feedSeen++
	switch event.Type {
	case feed.EventCommentCreated:
		a.logInfo("Comment %d created on post %d", event.CommentID, event.PostID)
	case feed.EventVoteUpdated:
		if event.KeyFactor != nil {
			a.logInfo("Key factor %d now scores %+g (%d votes)", event.KeyFactor.ID, event.Vote.Score, event.Vote.Count)
		}
	case feed.EventKeyFactorAdded:
		if n := len(a.session.Store().Ranked()); a.cursor[paneKeyFactors] >= n {
			a.cursor[paneKeyFactors] = max(0, n-1)
		}
		a.logger.Debug("key factor added", zap.Int64("post", event.PostID), zap.Int64("comment", event.CommentID))
	}
}

func (a *App) waitForPreview() tea.Cmd {
	ch := a.previewUpdates
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		state, ok := <-ch
		if !ok {
			return nil
		}
		return previewMsg(state)
	}
}

// applyPreview records state and fills the draft it was requested for. A
// state older than the one already shown is dropped.
func (a *App) applyPreview(state preview.State) {
	if state.Seq < a.previewState.Seq {
		return
	}
	a.previewState = state
	if state.Article == nil || a.previewDraft == nil {
		return
	}
	if normalized, ok := keyfactor.NormalizeURL(a.previewDraft.URL); !ok || normalized != state.URL {
		return
	}
	a.previewDraft.ApplyArticle(*state.Article)
	a.statusMsg = "Preview loaded: " + state.Article.Title
}

func (a *App) setError(prefix string, err error) {
	var subErr *workbench.SubmissionError
	if errors.As(err, &subErr) {
		a.statusMsg = fmt.Sprintf("%s: %s", prefix, strings.Join(subErr.Messages(), "; "))
	} else {
		a.statusMsg = fmt.Sprintf("%s: %v", prefix, err)
	}
	a.logError("%s: %v", prefix, err)
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook != nil {
		a.logbook.Info(format, args...)
	}
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook != nil {
		a.logbook.Warn(format, args...)
	}
}

func (a *App) logError(format string, args ...any) {
	if a.logbook != nil {
		a.logbook.Error(format, args...)
	}
	a.logger.Warn(fmt.Sprintf(format, args...))
}
