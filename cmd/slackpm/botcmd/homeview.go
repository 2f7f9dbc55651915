package botcmd

import (
	"fmt"

	"github.com/quailyquaily/slackpm/internal/taskstore"
)

const markDoneActionID = "mark_done"

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type buttonElement struct {
	Type     string      `json:"type"`
	Text     *textObject `json:"text,omitempty"`
	Value    string      `json:"value,omitempty"`
	ActionID string      `json:"action_id,omitempty"`
}

type sectionBlock struct {
	Type      string         `json:"type"`
	Text      *textObject    `json:"text,omitempty"`
	Accessory *buttonElement `json:"accessory,omitempty"`
}

type homeView struct {
	Type   string         `json:"type"`
	Blocks []sectionBlock `json:"blocks"`
}

func mrkdwnSection(text string) sectionBlock {
	return sectionBlock{
		Type: "section",
		Text: &textObject{Type: "mrkdwn", Text: text},
	}
}

// tasksForOwner scans the store in insertion order for records owned by
// userID. The scan is O(n); fine at this scale.
func tasksForOwner(store *taskstore.Store, userID string) []taskstore.Metadata {
	var tasks []taskstore.Metadata
	store.Range(func(_ taskstore.Key, md taskstore.Metadata) bool {
		if md.Owner == userID {
			tasks = append(tasks, md)
		}
		return true
	})
	return tasks
}

// buildHomeView renders the App Home task list with a Mark Done button per
// task. The button value carries the record key as "channel:ts".
func buildHomeView(tasks []taskstore.Metadata) homeView {
	blocks := []sectionBlock{
		mrkdwnSection("Welcome to SlackPM! Here are your tasks:"),
	}
	if len(tasks) == 0 {
		blocks = append(blocks, mrkdwnSection("No tasks found."))
		return homeView{Type: "home", Blocks: blocks}
	}
	for _, task := range tasks {
		block := mrkdwnSection(fmt.Sprintf("*%s* (Project: %s)", task.Summary, task.ProjectID))
		if task.Source != nil {
			block.Accessory = &buttonElement{
				Type:     "button",
				Text:     &textObject{Type: "plain_text", Text: "Mark Done", Emoji: true},
				Value:    task.Source.Channel + ":" + task.Source.TS,
				ActionID: markDoneActionID,
			}
		}
		blocks = append(blocks, block)
	}
	return homeView{Type: "home", Blocks: blocks}
}

func markDoneConfirmationView() homeView {
	return homeView{
		Type:   "home",
		Blocks: []sectionBlock{mrkdwnSection("Task marked as done!")},
	}
}
