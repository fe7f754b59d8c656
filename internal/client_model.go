package internal

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// TUIModel holds all client state: the session identity, the reconciled
// room directory, the active-room session with its dedup set, and the
// bubbletea widgets. Everything mutates synchronously inside Update, so no
// locking is needed.
type TUIModel struct {
	api *APIClient

	textInput textinput.Model
	viewport  viewport.Model
	width     int
	height    int
	sized     bool

	mode       appMode
	authIntent authIntent
	focus      focusArea

	user      User
	session   *RoomSession
	directory Directory

	// transcript is the rendered output for the active room only; it is
	// wiped in full on every room switch.
	transcript []string
	images     []string

	sidebarIndex int

	pendingUsername string
	pendingImage    string

	searchQuery  string
	searchResult *User
	searchErr    string
	contacts     []Contact

	browsePath  string
	browseItems []FileItem
	browseIndex int

	statusErr string
	pollErr   string
	notice    string
	loading   bool
	polling   bool
}

type appMode int

const (
	modeAuthMenu appMode = iota
	modeAuthUsername
	modeAuthPassword
	modeChat
	modeAddContact
	modeAttach
)

type authIntent int

const (
	authIntentLogin authIntent = iota
	authIntentSignup
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// NewTUIModel builds the client model. The session starts unselected; the
// identity check in Init decides between the login screen and the chat.
func NewTUIModel(api *APIClient, username string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0
	input.Prompt = ""

	vp := viewport.New(0, 0)

	return &TUIModel{
		api:             api,
		textInput:       input,
		viewport:        vp,
		mode:            modeAuthMenu,
		session:         NewRoomSession(),
		pendingUsername: username,
	}
}

// Init probes for an existing session before showing the login menu.
func (model *TUIModel) Init() tea.Cmd {
	model.loading = true
	return model.currentUserCmd()
}

// RunClient launches the bubbletea program against the given server.
func RunClient(serverURL, username string) error {
	api, err := NewAPIClient(serverURL)
	if err != nil {
		return err
	}
	program := tea.NewProgram(NewTUIModel(api, username))
	_, err = program.Run()
	return err
}
