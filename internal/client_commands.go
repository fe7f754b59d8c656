package internal

import (
	"errors"
	"os/exec"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// pollInterval is the fixed cadence of the message poller.
const pollInterval = 2 * time.Second

// schedulePollTick arms the next poller firing. The tick itself is
// room-agnostic; Update reads the active room id at fire time, so switching
// rooms never requires rescheduling the timer.
func schedulePollTick() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func (model *TUIModel) currentUserCmd() tea.Cmd {
	api := model.api
	return func() tea.Msg {
		user, err := api.CurrentUser()
		return currentUserMsg{user: user, err: err}
	}
}

func (model *TUIModel) authCmd(intent authIntent, username, password string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		var err error
		if intent == authIntentSignup {
			err = api.Register(username, password)
		} else {
			err = api.Login(username, password)
		}
		return authDoneMsg{username: username, err: err}
	}
}

func (model *TUIModel) loadDirectoryCmd() tea.Cmd {
	api := model.api
	username := model.user.Username
	return func() tea.Msg {
		dir, err := api.LoadDirectory(username)
		return directoryMsg{dir: dir, err: err}
	}
}

// historyCmd fetches the full history after a room switch. The result is
// tagged with the room id it was issued for so a slow response for a room
// the user has already left gets dropped.
func (model *TUIModel) historyCmd(roomID int64) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		messages, err := api.RoomMessages(roomID)
		return historyMsg{roomID: roomID, messages: messages, err: err}
	}
}

// pollCmd is one poller fetch, tagged like historyCmd.
func (model *TUIModel) pollCmd(roomID int64) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		messages, err := api.RoomMessages(roomID)
		return pollResultMsg{roomID: roomID, messages: messages, err: err}
	}
}

func (model *TUIModel) sendCmd(roomID int64, content, imagePath string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		err := api.SendMessage(roomID, content, imagePath)
		return sendResultMsg{roomID: roomID, err: err}
	}
}

func (model *TUIModel) searchContactCmd(query string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		user, err := api.SearchContact(query)
		return searchResultMsg{query: query, user: user, err: err}
	}
}

func (model *TUIModel) addContactCmd(username string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		err := api.AddContact(username)
		return contactAddedMsg{username: username, err: err}
	}
}

func (model *TUIModel) contactsCmd() tea.Cmd {
	api := model.api
	return func() tea.Msg {
		contacts, err := api.Contacts()
		return contactsMsg{contacts: contacts, err: err}
	}
}

func (model *TUIModel) createRoomCmd(name string) tea.Cmd {
	api := model.api
	return func() tea.Msg {
		room, err := api.CreateRoom(name, RoomTypePublic)
		return roomCreatedMsg{room: room, err: err}
	}
}

func (model *TUIModel) logoutCmd() tea.Cmd {
	api := model.api
	return func() tea.Msg {
		return loggedOutMsg{err: api.Logout()}
	}
}

func (model *TUIModel) browseCmd(path string) tea.Cmd {
	return func() tea.Msg {
		items, err := browseImages(path)
		return browseMsg{path: path, items: items, err: err}
	}
}

// openImageCmd hands an image URL to the OS opener so the full-size image
// shows up in the user's browser.
func (model *TUIModel) openImageCmd(imageURL string) tea.Cmd {
	target := model.api.ResolveURL(imageURL)
	return func() tea.Msg {
		var cmd *exec.Cmd
		switch runtime.GOOS {
		case "darwin":
			cmd = exec.Command("open", target)
		case "windows":
			cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
		default:
			cmd = exec.Command("xdg-open", target)
		}
		if err := cmd.Start(); err != nil {
			return openImageDoneMsg{err: errors.New("could not open " + target)}
		}
		return openImageDoneMsg{}
	}
}
