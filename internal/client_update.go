package internal

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Asynchronous events. Every message-list result carries the room id the
// fetch was issued for; Update drops results whose tag no longer matches
// the active selection.
type (
	currentUserMsg struct {
		user User
		err  error
	}
	authDoneMsg struct {
		username string
		err      error
	}
	directoryMsg struct {
		dir Directory
		err error
	}
	historyMsg struct {
		roomID   int64
		messages []Message
		err      error
	}
	pollTickMsg   struct{}
	pollResultMsg struct {
		roomID   int64
		messages []Message
		err      error
	}
	sendResultMsg struct {
		roomID int64
		err    error
	}
	searchResultMsg struct {
		query string
		user  User
		err   error
	}
	contactsMsg struct {
		contacts []Contact
		err      error
	}
	contactAddedMsg struct {
		username string
		err      error
	}
	roomCreatedMsg struct {
		room Room
		err  error
	}
	browseMsg struct {
		path  string
		items []FileItem
		err   error
	}
	openImageDoneMsg struct{ err error }
	loggedOutMsg     struct{ err error }
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.WindowSizeMsg:
		model.resize(typedMessage.Width, typedMessage.Height)
		return model, nil

	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC {
			return model, tea.Quit
		}
		return model.updateKey(typedMessage)

	case currentUserMsg:
		model.loading = false
		if typedMessage.err != nil {
			// No session (or the server rejected it): back to the login
			// screen, the terminal analog of the login redirect.
			if !errors.Is(typedMessage.err, errUnauthorized) {
				model.statusErr = typedMessage.err.Error()
			}
			model.mode = modeAuthMenu
			return model, nil
		}
		model.user = typedMessage.user
		model.enterChat()
		cmds := []tea.Cmd{model.loadDirectoryCmd()}
		if !model.polling {
			model.polling = true
			cmds = append(cmds, schedulePollTick())
		}
		return model, tea.Batch(cmds...)

	case authDoneMsg:
		if typedMessage.err != nil {
			model.loading = false
			model.mode = modeAuthMenu
			model.statusErr = typedMessage.err.Error()
			return model, nil
		}
		model.pendingUsername = typedMessage.username
		return model, model.currentUserCmd()

	case directoryMsg:
		model.loading = false
		if typedMessage.err != nil {
			// Background sync failure: render the empty state, keep going.
			model.directory = Directory{}
			model.pollErr = typedMessage.err.Error()
			return model, nil
		}
		model.directory = typedMessage.dir
		model.clampSidebarIndex()
		if !model.session.Selected() && typedMessage.dir.DefaultRoomID != 0 {
			return model, model.switchRoom(typedMessage.dir.DefaultRoomID)
		}
		return model, nil

	case historyMsg:
		model.applyFetch(typedMessage.roomID, typedMessage.messages, typedMessage.err)
		return model, nil

	case pollResultMsg:
		model.applyFetch(typedMessage.roomID, typedMessage.messages, typedMessage.err)
		return model, nil

	case pollTickMsg:
		if model.user.ID == 0 {
			// Logged out; let the ticker die. It restarts on next login.
			model.polling = false
			return model, nil
		}
		cmds := []tea.Cmd{schedulePollTick()}
		// The active room is read at fire time, never captured at
		// scheduling time, so the poller self-adapts to room switches.
		if model.session.Selected() {
			cmds = append(cmds, model.pollCmd(model.session.ActiveRoomID()))
		}
		return model, tea.Batch(cmds...)

	case sendResultMsg:
		if typedMessage.err != nil {
			model.statusErr = typedMessage.err.Error()
			return model, nil
		}
		model.textInput.SetValue("")
		model.pendingImage = ""
		model.statusErr = ""
		if model.session.Accepts(typedMessage.roomID) {
			// Converge right away instead of waiting out the tick.
			return model, model.pollCmd(typedMessage.roomID)
		}
		return model, nil

	case searchResultMsg:
		if model.mode != modeAddContact {
			return model, nil
		}
		if typedMessage.err != nil {
			model.searchResult = nil
			model.searchErr = typedMessage.err.Error()
			return model, nil
		}
		found := typedMessage.user
		model.searchResult = &found
		model.searchErr = ""
		return model, nil

	case contactsMsg:
		if typedMessage.err == nil {
			model.contacts = typedMessage.contacts
		}
		return model, nil

	case contactAddedMsg:
		if typedMessage.err != nil {
			model.searchErr = typedMessage.err.Error()
			return model, nil
		}
		model.notice = "Added " + typedMessage.username + " to contacts"
		model.leaveAddContact()
		return model, model.loadDirectoryCmd()

	case roomCreatedMsg:
		if typedMessage.err != nil {
			model.statusErr = typedMessage.err.Error()
			return model, nil
		}
		model.notice = "Created room " + typedMessage.room.Name
		return model, model.loadDirectoryCmd()

	case browseMsg:
		if typedMessage.err != nil {
			model.statusErr = typedMessage.err.Error()
			return model, nil
		}
		model.mode = modeAttach
		model.browsePath = typedMessage.path
		model.browseItems = typedMessage.items
		model.browseIndex = 0
		return model, nil

	case openImageDoneMsg:
		if typedMessage.err != nil {
			model.statusErr = typedMessage.err.Error()
		}
		return model, nil

	case loggedOutMsg:
		model.resetToLogin()
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch model.mode {
	case modeAuthMenu:
		switch key.String() {
		case "1", "l", "L":
			return model.startAuthPrompt(authIntentLogin)
		case "2", "s", "S":
			return model.startAuthPrompt(authIntentSignup)
		case "q", "Q", "esc":
			return model, tea.Quit
		}
		return model, nil

	case modeAuthUsername:
		switch key.Type {
		case tea.KeyEnter:
			trimmed := strings.TrimSpace(model.textInput.Value())
			if trimmed == "" {
				return model, nil
			}
			model.pendingUsername = trimmed
			model.textInput.SetValue("")
			model.textInput.Placeholder = "password"
			model.textInput.Prompt = "pass> "
			model.textInput.EchoMode = textinput.EchoPassword
			model.textInput.EchoCharacter = '•'
			model.mode = modeAuthPassword
			return model, nil
		case tea.KeyEsc:
			model.resetInput()
			model.mode = modeAuthMenu
			return model, nil
		}

	case modeAuthPassword:
		switch key.Type {
		case tea.KeyEnter:
			password := model.textInput.Value()
			if password == "" {
				return model, nil
			}
			intent := model.authIntent
			username := model.pendingUsername
			model.resetInput()
			model.loading = true
			model.statusErr = ""
			return model, model.authCmd(intent, username, password)
		case tea.KeyEsc:
			model.textInput.SetValue("")
			model.textInput.Placeholder = "username"
			model.textInput.Prompt = "user> "
			model.textInput.EchoMode = textinput.EchoNormal
			model.mode = modeAuthUsername
			return model, nil
		}

	case modeChat:
		return model.updateChatKey(key)

	case modeAddContact:
		return model.updateAddContactKey(key)

	case modeAttach:
		return model.updateAttachKey(key)
	}

	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChatKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyTab:
		model.toggleFocus()
		return model, nil
	case tea.KeyEsc:
		if model.focus == focusInput {
			model.toggleFocus()
		}
		return model, nil
	}

	if model.focus == focusSidebar {
		switch key.String() {
		case "up", "k":
			if model.sidebarIndex > 0 {
				model.sidebarIndex--
			}
			return model, nil
		case "down", "j":
			if model.sidebarIndex < len(model.sidebarEntries())-1 {
				model.sidebarIndex++
			}
			return model, nil
		case "enter":
			entries := model.sidebarEntries()
			if model.sidebarIndex < len(entries) {
				return model, model.switchRoom(entries[model.sidebarIndex].roomID)
			}
			return model, nil
		case "a", "A":
			return model.startAddContact()
		case "o", "O":
			return model, model.openLatestImage()
		case "r", "R":
			model.loading = true
			return model, model.loadDirectoryCmd()
		}
		// Scroll keys fall through to the viewport so pgup/pgdn work.
		var cmd tea.Cmd
		model.viewport, cmd = model.viewport.Update(key)
		return model, cmd
	}

	if key.Type == tea.KeyEnter {
		return model.submitInput()
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

// submitInput handles enter in the message box: slash commands locally,
// everything else as a send to the active room.
func (model *TUIModel) submitInput() (tea.Model, tea.Cmd) {
	trimmed := strings.TrimSpace(model.textInput.Value())

	if strings.HasPrefix(trimmed, "/") {
		parts := strings.SplitN(trimmed, " ", 2)
		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}
		switch strings.ToLower(parts[0]) {
		case "/quit", "/exit":
			return model, tea.Quit
		case "/logout":
			return model, model.logoutCmd()
		case "/add":
			return model.startAddContact()
		case "/attach":
			model.textInput.SetValue("")
			if arg != "" {
				if err := ValidateImage(arg); err != nil {
					model.statusErr = err.Error()
					return model, nil
				}
				model.pendingImage = arg
				model.notice = "Attached " + arg
				return model, nil
			}
			return model, model.browseCmd(defaultBrowsePath())
		case "/detach":
			model.textInput.SetValue("")
			model.pendingImage = ""
			model.notice = ""
			return model, nil
		case "/create":
			model.textInput.SetValue("")
			if arg == "" {
				model.statusErr = "usage: /create <room name>"
				return model, nil
			}
			return model, model.createRoomCmd(arg)
		}
		model.statusErr = "unknown command: " + parts[0]
		return model, nil
	}

	if !model.session.Selected() {
		model.statusErr = "no room selected"
		return model, nil
	}
	// Empty sends are blocked here, before any network call.
	if trimmed == "" && model.pendingImage == "" {
		model.statusErr = ErrEmptyMessage.Error()
		return model, nil
	}
	return model, model.sendCmd(model.session.ActiveRoomID(), trimmed, model.pendingImage)
}

func (model *TUIModel) updateAddContactKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.leaveAddContact()
		return model, nil
	case tea.KeyEnter:
		if model.searchResult != nil {
			return model, model.addContactCmd(model.searchResult.Username)
		}
		return model, nil
	}

	before := model.textInput.Value()
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	query := strings.TrimSpace(model.textInput.Value())
	if query == before || query == model.searchQuery {
		return model, cmd
	}
	model.searchQuery = query
	if query == "" {
		// Empty query clears results without a round trip.
		model.searchResult = nil
		model.searchErr = ""
		return model, cmd
	}
	// Each input change issues a lookup; there is no timer debounce.
	return model, tea.Batch(cmd, model.searchContactCmd(query))
}

func (model *TUIModel) updateAttachKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc":
		model.mode = modeChat
		return model, nil
	case "up", "k":
		if model.browseIndex > 0 {
			model.browseIndex--
		}
		return model, nil
	case "down", "j":
		if model.browseIndex < len(model.browseItems)-1 {
			model.browseIndex++
		}
		return model, nil
	case "enter":
		if model.browseIndex >= len(model.browseItems) {
			return model, nil
		}
		item := model.browseItems[model.browseIndex]
		if item.IsDir {
			return model, model.browseCmd(item.Path)
		}
		if err := ValidateImage(item.Path); err != nil {
			model.statusErr = err.Error()
			return model, nil
		}
		model.pendingImage = item.Path
		model.notice = "Attached " + item.Name
		model.mode = modeChat
		return model, nil
	}
	return model, nil
}

// switchRoom performs the full room-switch transition: select the new room
// (which resets the dedup set), wipe the rendered transcript, and fire a
// tagged history fetch. Highlighting needs no bookkeeping; the view derives
// it from the active room id.
func (model *TUIModel) switchRoom(roomID int64) tea.Cmd {
	if roomID == 0 {
		return nil
	}
	model.session.Select(roomID)
	model.transcript = nil
	model.images = nil
	model.viewport.SetContent("")
	model.viewport.GotoTop()
	model.statusErr = ""
	model.pollErr = ""
	model.notice = ""
	if model.focus == focusSidebar {
		model.toggleFocus()
	}
	return model.historyCmd(roomID)
}

// applyFetch feeds a tagged message-list result through the session. Stale
// results (wrong room) vanish, duplicates are filtered, failures are noted
// on the status line and otherwise swallowed; the next tick self-heals.
func (model *TUIModel) applyFetch(roomID int64, messages []Message, err error) {
	if !model.session.Accepts(roomID) {
		return
	}
	if err != nil {
		model.pollErr = err.Error()
		return
	}
	model.pollErr = ""
	model.appendMessages(model.session.Absorb(roomID, messages))
}

// appendMessages renders new messages into the transcript, preserving the
// read-latest scroll policy: re-pin to the bottom only when the view was
// already there before the append.
func (model *TUIModel) appendMessages(fresh []Message) {
	if len(fresh) == 0 {
		return
	}
	pinned := transcriptPinned(model.viewport)
	for _, msg := range fresh {
		model.transcript = append(model.transcript, renderMessageLines(msg, model.user.ID)...)
		if msg.HasImage() {
			model.images = append(model.images, msg.ImageURL)
		}
	}
	model.viewport.SetContent(strings.Join(model.transcript, "\n"))
	if pinned {
		model.viewport.GotoBottom()
	}
}

func (model *TUIModel) openLatestImage() tea.Cmd {
	if len(model.images) == 0 {
		model.statusErr = "no images in this room yet"
		return nil
	}
	return model.openImageCmd(model.images[len(model.images)-1])
}

func (model *TUIModel) startAuthPrompt(intent authIntent) (tea.Model, tea.Cmd) {
	model.authIntent = intent
	model.mode = modeAuthUsername
	model.statusErr = ""
	model.textInput.SetValue(model.pendingUsername)
	model.textInput.Placeholder = "username"
	model.textInput.Prompt = "user> "
	model.textInput.EchoMode = textinput.EchoNormal
	return model, model.textInput.Focus()
}

func (model *TUIModel) startAddContact() (tea.Model, tea.Cmd) {
	model.mode = modeAddContact
	model.searchQuery = ""
	model.searchResult = nil
	model.searchErr = ""
	model.textInput.SetValue("")
	model.textInput.Placeholder = "username to add"
	model.textInput.Prompt = "find> "
	focusCmd := model.textInput.Focus()
	return model, tea.Batch(focusCmd, model.contactsCmd())
}

func (model *TUIModel) leaveAddContact() {
	model.mode = modeChat
	model.searchQuery = ""
	model.searchResult = nil
	model.searchErr = ""
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	model.focus = focusInput
	model.textInput.Focus()
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.focus = focusInput
	model.statusErr = ""
	model.loading = true
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…"
	model.textInput.Prompt = "> "
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Focus()
}

func (model *TUIModel) toggleFocus() {
	if model.focus == focusInput {
		model.focus = focusSidebar
		model.textInput.Blur()
	} else {
		model.focus = focusInput
		model.textInput.Focus()
	}
}

func (model *TUIModel) resetInput() {
	model.textInput.SetValue("")
	model.textInput.Placeholder = ""
	model.textInput.Prompt = ""
	model.textInput.EchoMode = textinput.EchoNormal
	model.textInput.Blur()
}

func (model *TUIModel) resetToLogin() {
	model.user = User{}
	model.session = NewRoomSession()
	model.directory = Directory{}
	model.transcript = nil
	model.images = nil
	model.contacts = nil
	model.pendingImage = ""
	model.sidebarIndex = 0
	model.statusErr = ""
	model.pollErr = ""
	model.notice = ""
	model.viewport.SetContent("")
	model.resetInput()
	model.mode = modeAuthMenu
}

func (model *TUIModel) clampSidebarIndex() {
	if count := len(model.sidebarEntries()); model.sidebarIndex >= count && count > 0 {
		model.sidebarIndex = count - 1
	} else if count == 0 {
		model.sidebarIndex = 0
	}
}

func (model *TUIModel) resize(width, height int) {
	model.width = width
	model.height = height
	model.sized = true
	vpWidth := width - sidebarWidth - 8
	if vpWidth < 20 {
		vpWidth = 20
	}
	vpHeight := height - 9
	if vpHeight < 5 {
		vpHeight = 5
	}
	pinned := transcriptPinned(model.viewport)
	model.viewport.Width = vpWidth
	model.viewport.Height = vpHeight
	if pinned {
		model.viewport.GotoBottom()
	}
}
