package internal

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const sidebarWidth = 24

var (
	appTitleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(1, 2).MarginTop(1)
	menuItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).PaddingLeft(1)
	menuHotkeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	menuHintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	chatHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("109"))
	noticeStyle       = statusStyle.Copy().Foreground(lipgloss.Color("42"))
	connectingStyle   = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle        = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	messageBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	inputBoxStyle     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle     = lipgloss.NewStyle().Bold(true)
	ownUserStyle      = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	imageTagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	imageURLStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Underline(true)
	dividerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	sidebarBoxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1).Width(sidebarWidth)
	sidebarFocusStyle = sidebarBoxStyle.Copy().BorderForeground(lipgloss.Color("213"))
	sidebarHeadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true)
	roomItemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	roomActiveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	roomCursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	transcriptStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 1)
	userColorPalette  = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model *TUIModel) View() string {
	switch model.mode {
	case modeAuthMenu:
		return model.renderAuthMenuView()
	case modeAuthUsername, modeAuthPassword:
		return model.renderAuthPromptView()
	case modeAddContact:
		return model.renderAddContactView()
	case modeAttach:
		return model.renderAttachView()
	default:
		return model.renderChatView()
	}
}

func (model *TUIModel) renderAuthMenuView() string {
	title := appTitleStyle.Render("Parlor")
	subtitle := subtitleStyle.Render("Rooms, contacts, and pictures from your terminal")

	options := []string{
		renderMenuOption("1", "Log in"),
		renderMenuOption("2", "Sign up"),
		renderMenuOption("q", "Quit"),
	}

	viewSections := []string{
		lipgloss.JoinVertical(lipgloss.Left, title, subtitle),
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, options...)),
	}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if model.statusErr != "" {
		viewSections = append(viewSections, errorStyle.Render(model.statusErr))
	}

	viewSections = append(viewSections, menuHintStyle.Render("1) Log in  •  2) Sign up  •  q) Quit"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAuthPromptView() string {
	title := "Log in"
	if model.authIntent == authIntentSignup {
		title = "Create an account"
	}
	hint := "Enter your username"
	if model.mode == modeAuthPassword {
		hint = "Enter your password"
	}

	viewSections := []string{appTitleStyle.Render(title), menuHintStyle.Render(hint)}

	if model.loading {
		viewSections = append(viewSections, connectingStyle.Render("Working…"))
	}
	if model.statusErr != "" {
		viewSections = append(viewSections, errorStyle.Render(model.statusErr))
	}

	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))
	viewSections = append(viewSections, menuHintStyle.Render("Enter to continue • Esc to go back"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderChatView() string {
	headerSegments := []string{"Parlor"}
	if label := model.directory.RoomLabel(model.session.ActiveRoomID()); label != "" {
		headerSegments = append(headerSegments, label)
	}
	headerSegments = append(headerSegments, fmt.Sprintf("User %s", model.user.Username))
	headerSegments = append(headerSegments, fmt.Sprintf("Server %s", model.api.BaseURL()))
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.statusErr != "":
		statusLine = errorStyle.Render(model.statusErr)
	case model.pollErr != "":
		statusLine = errorStyle.Render("Sync error: " + model.pollErr)
	case model.loading:
		statusLine = connectingStyle.Render("Loading…")
	case model.notice != "":
		statusLine = noticeStyle.Render(model.notice)
	case model.pendingImage != "":
		statusLine = noticeStyle.Render("Attached: " + model.pendingImage + "  (/detach to remove)")
	default:
		statusLine = statusStyle.Render("Connected")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		model.renderSidebar(),
		transcriptStyle.Render(model.viewport.View()),
	)

	inputView := inputBoxStyle.Render(model.textInput.View())
	footerHint := menuHintStyle.Render("Tab sidebar • a add contact • o open image • /create /attach /logout /quit")

	sections := []string{header, statusLine, body, inputView, footerHint}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model *TUIModel) renderSidebar() string {
	entries := model.sidebarEntries()

	var lines []string
	lines = append(lines, sidebarHeadStyle.Render("Rooms"))
	if len(entries) == 0 {
		lines = append(lines, menuHintStyle.Render("No rooms yet."))
	}
	activeID := model.session.ActiveRoomID()
	lastSection := sectionPublic
	for idx, entry := range entries {
		if entry.section != lastSection {
			lines = append(lines, sidebarHeadStyle.Render("Contacts"))
			lastSection = entry.section
		}
		cursor := "  "
		if model.focus == focusSidebar && idx == model.sidebarIndex {
			cursor = roomCursorStyle.Render("➤ ")
		}
		label := entry.label
		switch {
		// Exactly one entry carries the active mark; the check runs
		// against the session, never against cached state.
		case entry.roomID == activeID:
			lines = append(lines, cursor+roomActiveStyle.Render("● "+label))
		default:
			lines = append(lines, cursor+roomItemStyle.Render("  "+label))
		}
	}

	box := sidebarBoxStyle
	if model.focus == focusSidebar {
		box = sidebarFocusStyle
	}
	if model.sized {
		box = box.Copy().Height(model.viewport.Height)
	}
	return box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (model *TUIModel) renderAddContactView() string {
	title := appTitleStyle.Render("Add a contact")
	hint := menuHintStyle.Render("Type a username to look it up • Enter to add • Esc to go back")

	viewSections := []string{title, hint, inputBoxStyle.Render(model.textInput.View())}

	switch {
	case model.searchErr != "":
		viewSections = append(viewSections, errorStyle.Render(model.searchErr))
	case model.searchResult != nil:
		viewSections = append(viewSections, noticeStyle.Render(fmt.Sprintf("Found %s. Press Enter to add.", model.searchResult.Username)))
	case model.searchQuery != "":
		viewSections = append(viewSections, connectingStyle.Render("Searching…"))
	}

	if len(model.contacts) > 0 {
		var lines []string
		lines = append(lines, sidebarHeadStyle.Render("Your contacts"))
		for _, contact := range model.contacts {
			lines = append(lines, roomItemStyle.Render("  "+contact.Username))
		}
		viewSections = append(viewSections, menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model *TUIModel) renderAttachView() string {
	title := appTitleStyle.Render("Attach an image")
	subtitle := subtitleStyle.Render(model.browsePath)

	var lines []string
	if len(model.browseItems) == 0 {
		lines = append(lines, menuHintStyle.Render("No images here."))
	}
	for idx, item := range model.browseItems {
		cursor := "  "
		if idx == model.browseIndex {
			cursor = roomCursorStyle.Render("➤ ")
		}
		label := item.Name
		if item.IsDir {
			label += "/"
		} else {
			label += "  " + formatFileSize(item.Size)
		}
		style := roomItemStyle
		if idx == model.browseIndex {
			style = roomActiveStyle
		}
		lines = append(lines, cursor+style.Render(label))
	}

	viewSections := []string{
		title,
		subtitle,
		menuBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
	}
	if model.statusErr != "" {
		viewSections = append(viewSections, errorStyle.Render(model.statusErr))
	}
	viewSections = append(viewSections, menuHintStyle.Render("↑/↓ select • Enter open/attach • Esc back"))

	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func renderMenuOption(hotkey string, label string) string {
	key := menuHotkeyStyle.Render(hotkey)
	return lipgloss.JoinHorizontal(lipgloss.Left, key, menuItemStyle.Render(label))
}

type sidebarSection int

const (
	sectionPublic sidebarSection = iota
	sectionContacts
)

type sidebarEntry struct {
	roomID  int64
	label   string
	section sidebarSection
}

// sidebarEntries flattens the reconciled directory into the selectable list
// the sidebar cursor walks: public rooms first, then contact rooms under
// their stripped labels.
func (model *TUIModel) sidebarEntries() []sidebarEntry {
	entries := make([]sidebarEntry, 0, len(model.directory.PublicRooms)+len(model.directory.Contacts))
	for _, room := range model.directory.PublicRooms {
		entries = append(entries, sidebarEntry{roomID: room.ID, label: room.Name, section: sectionPublic})
	}
	for _, contact := range model.directory.Contacts {
		entries = append(entries, sidebarEntry{roomID: contact.ID, label: contact.Label, section: sectionContacts})
	}
	return entries
}

func colorForUser(name string) lipgloss.Color {
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
