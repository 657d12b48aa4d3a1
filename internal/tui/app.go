package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/awinspect/internal/evaluator"
	"github.com/mpataki/awinspect/internal/lua"
	"github.com/mpataki/awinspect/internal/models"
)

type View int

const (
	ViewWorkflows View = iota
	ViewWorkflowDetail
	ViewModelPicker
	ViewSimulationInput
	ViewRun
	ViewRunHistory
	ViewReport
)

// chrome is the number of lines used by titles and help around a viewport.
const chrome = 4

type App struct {
	ctx          context.Context
	eval         *evaluator.Evaluator
	workflowsDir string
	maxRuns      int

	view   View
	width  int
	height int
	err    error

	workflows   []models.Workflow
	selectedIdx int

	inspection *evaluator.Inspection
	findings   []lua.Finding
	detail     viewport.Model

	// model picker
	action        models.RunKind
	returnView    View
	chatModels    []models.ChatModel
	modelIdx      int
	modelsLoading bool
	modelErr      error
	spinner       spinner.Model

	input       textarea.Model
	chosenModel string

	// active run
	runCh       chan tea.Msg
	runCancel   context.CancelFunc
	running     bool
	runWorkflow models.Workflow
	runKind     models.RunKind
	runOutput   string
	runResult   *models.Run
	runErr      error
	output      viewport.Model

	runs      []*models.Run
	runIdx    int
	reportRun *models.Run
	report    viewport.Model
}

func NewApp(ctx context.Context, eval *evaluator.Evaluator, workflowsDir string, maxRuns int) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = statusRunning

	ta := textarea.New()
	ta.Placeholder = "Describe the event or issue the workflow receives..."
	ta.ShowLineNumbers = false

	return &App{
		ctx:          ctx,
		eval:         eval,
		workflowsDir: workflowsDir,
		maxRuns:      maxRuns,
		view:         ViewWorkflows,
		detail:       viewport.New(80, 20),
		output:       viewport.New(80, 20),
		report:       viewport.New(80, 20),
		spinner:      sp,
		input:        ta,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadWorkflows, a.watchWorkflows, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (a *App) hasRunningRuns() bool {
	for _, run := range a.runs {
		if run.Status == models.RunStatusRunning {
			return true
		}
	}
	return false
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)
		return a, nil

	case spinner.TickMsg:
		if !a.running && !a.modelsLoading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tickMsg:
		// Only refresh if we're on the history view and have running runs
		if a.view == ViewRunHistory && a.hasRunningRuns() {
			return a, tea.Batch(a.loadRuns, a.tickCmd())
		}
		return a, a.tickCmd()

	case workflowsLoadedMsg:
		a.workflows = msg.workflows
		a.err = msg.err
		if a.selectedIdx >= len(a.workflows) {
			a.selectedIdx = max(len(a.workflows)-1, 0)
		}
		return a, nil

	case watchStartedMsg:
		return a, waitForChange(msg.changes)

	case workflowsChangedMsg:
		cmds := []tea.Cmd{a.loadWorkflows, waitForChange(msg.changes)}
		if a.view == ViewWorkflowDetail && a.inspection != nil {
			cmds = append(cmds, a.loadInspection(a.inspection.Workflow))
		}
		return a, tea.Batch(cmds...)

	case inspectionMsg:
		a.err = msg.err
		if msg.inspection != nil {
			a.inspection = msg.inspection
			a.findings = msg.findings
			a.refreshDetail()
			a.view = ViewWorkflowDetail
		}
		return a, nil

	case modelsLoadedMsg:
		a.modelsLoading = false
		a.modelErr = msg.err
		if msg.err == nil {
			a.chatModels = msg.models
			if a.modelIdx >= len(a.chatModels) {
				a.modelIdx = 0
			}
		}
		return a, nil

	case runDeltaMsg:
		if msg.ch == a.runCh {
			a.runOutput += msg.delta
			a.refreshOutput()
		}
		return a, waitForRun(msg.ch)

	case runFinishedMsg:
		if msg.ch == a.runCh {
			a.running = false
			a.runResult = msg.run
			a.runErr = msg.err
			a.runCancel()
			a.refreshOutput()
		}
		return a, nil

	case runsLoadedMsg:
		a.runs = msg.runs
		a.err = msg.err
		if a.runIdx >= len(a.runs) {
			a.runIdx = max(len(a.runs)-1, 0)
		}
		return a, nil

	case reportLoadedMsg:
		a.err = msg.err
		if msg.err == nil {
			a.reportRun = msg.run
			a.report.SetContent(renderMarkdown(msg.content, a.report.Width))
			a.report.GotoTop()
			a.view = ViewReport
		}
		return a, nil

	case runKilledMsg:
		a.err = msg.err
		return a, a.loadRuns

	case runDeletedMsg:
		a.err = msg.err
		return a, a.loadRuns

	case sessionResumedMsg:
		a.err = msg.err
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) resize(width, height int) {
	a.width = width
	a.height = height

	vpHeight := max(height-chrome, 1)
	for _, vp := range []*viewport.Model{&a.detail, &a.output, &a.report} {
		vp.Width = max(width, 1)
		vp.Height = vpHeight
	}
	a.input.SetWidth(max(width-2, 10))
	a.input.SetHeight(max(height/3, 3))

	if a.inspection != nil {
		a.refreshDetail()
	}
	a.refreshOutput()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.view {
	case ViewWorkflows:
		return a.handleWorkflowsKey(msg)
	case ViewWorkflowDetail:
		return a.handleDetailKey(msg)
	case ViewModelPicker:
		return a.handleModelPickerKey(msg)
	case ViewSimulationInput:
		return a.handleSimulationInputKey(msg)
	case ViewRun:
		return a.handleRunKey(msg)
	case ViewRunHistory:
		return a.handleRunHistoryKey(msg)
	case ViewReport:
		return a.handleReportKey(msg)
	}
	return a, nil
}

func (a *App) View() string {
	switch a.view {
	case ViewWorkflows:
		return a.viewWorkflows()
	case ViewWorkflowDetail:
		return a.viewDetail()
	case ViewModelPicker:
		return a.viewModelPicker()
	case ViewSimulationInput:
		return a.viewSimulationInput()
	case ViewRun:
		return a.viewRun()
	case ViewRunHistory:
		return a.viewRunHistory()
	case ViewReport:
		return a.viewReport()
	}
	return ""
}

// selectedWorkflow is the workflow the current action applies to.
func (a *App) selectedWorkflow() (models.Workflow, bool) {
	if a.view == ViewWorkflowDetail && a.inspection != nil {
		return a.inspection.Workflow, true
	}
	if len(a.workflows) > 0 && a.selectedIdx < len(a.workflows) {
		return a.workflows[a.selectedIdx], true
	}
	return models.Workflow{}, false
}
