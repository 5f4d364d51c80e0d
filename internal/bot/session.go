package bot

import (
	"fmt"

	"giftpool/core/telegram/format"
	tghelpers "giftpool/core/telegram/helpers"
	"giftpool/core/telegram/state"
	"giftpool/internal/service"

	tele "gopkg.in/telebot.v4"
)

// stateGroupCreate is the single-step group collection setup conversation.
const stateGroupCreate state.State = "group_collection_setup"

const tempOrganizerID = "organizer_id"

// registerSessions binds FSM states to their input handlers.
func (a *App) registerSessions() {
	state.RegisterHandler(stateGroupCreate, a.reply(a.handleGroupSessionInput))
}

// startGroupSession opens (or restarts) the creation session for a chat.
// One session per chat; a new request discards the previous one.
func (a *App) startGroupSession(chatID, organizerID int64) {
	a.fsm.Clear(chatID)
	a.fsm.SetState(chatID, stateGroupCreate)
	a.fsm.SetTemp(chatID, tempOrganizerID, organizerID)
}

// handleGroupSessionInput parses the answer to the group creation prompt:
// title|description|amount|recipientId|deadlineDays. The session is cleared
// on success and on parse failure alike.
func (a *App) handleGroupSessionInput(c tele.Context) (string, error) {
	chat := c.Chat()
	if chat == nil {
		return "", nil
	}
	defer a.fsm.Clear(chat.ID)

	organizerID := c.Sender().ID
	if v, ok := a.fsm.GetTempInt64(chat.ID, tempOrganizerID); ok {
		organizerID = v
	}

	parts, err := splitPipe(c.Text(), 3, groupCreationPrompt)
	if err != nil {
		return "", err
	}
	amount, err := parseAmount(parts[2])
	if err != nil {
		return "", err
	}

	gid := chat.ID
	p := service.CreateParams{
		OrganizerID:    organizerID,
		Title:          parts[0],
		Description:    parts[1],
		TargetAmount:   amount,
		ParticipantIDs: []int64{organizerID},
		GroupChatID:    &gid,
	}
	if len(parts) > 3 && parts[3] != "" {
		recipient, err := parseUserID(parts[3])
		if err != nil {
			return "", err
		}
		p.GiftRecipientID = &recipient
	}
	if len(parts) > 4 {
		days, err := parseDays(parts[4])
		if err != nil {
			return "", err
		}
		p.Deadline = deadlineFromDays(days)
	}

	ctx := tghelpers.BuildContext(c)
	created, err := a.createAndActivate(ctx, p)
	if err != nil {
		return "", err
	}
	err = tghelpers.SendMD(c,
		fmt.Sprintf("Collection *%s* is open!\nTarget: %s\nJoin in:",
			format.EscapeMD(created.Title), created.TargetAmount.StringFixed(2)),
		invitationMarkup(created.ID))
	return "", err
}
