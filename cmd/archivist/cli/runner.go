package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/session"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/ui"
)

// Runner drives one interactive interview over stdin. Slash commands control
// the session: /status, /commit, /abandon, /quit.
type Runner struct {
	Observer *observe.Observer
	Manager  *session.Manager
	UserID   string
	EntityID string
	Context  *schema.EntityContext
	ImageURL string
	UI       ui.UI

	// Input defaults to stdin; tests inject a script.
	Input *bufio.Scanner
}

func NewRunner(obs *observe.Observer, mgr *session.Manager, userID, entityID string, ec *schema.EntityContext, imageURL string, u ui.UI) *Runner {
	if u == nil {
		u = ui.SilentUI{}
	}
	return &Runner{
		Observer: obs,
		Manager:  mgr,
		UserID:   userID,
		EntityID: entityID,
		Context:  ec,
		ImageURL: imageURL,
		UI:       u,
		Input:    bufio.NewScanner(os.Stdin),
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.UI.UpdateStatus("opening")

	var media *schema.MediaAnalysis
	if r.ImageURL != "" {
		media = &schema.MediaAnalysis{Source: r.ImageURL}
	}

	sess, resumed, err := r.Manager.GetOrCreateForEntity(ctx, r.UserID, r.EntityID, r.Context, media)
	if err != nil {
		r.Observer.Log().Error().Err(err).Msg("Failed to open session")
		return err
	}

	if resumed {
		r.say("system", fmt.Sprintf("Resuming session %s.", sess.ID))
		for _, msg := range sess.Messages {
			if msg.Role == store.RoleUser || msg.Role == store.RoleAssistant {
				r.say(msg.Role, msg.Content)
			}
		}
	} else if len(sess.Messages) > 0 {
		r.say(store.RoleAssistant, sess.Messages[0].Content)
	}

	r.UI.UpdateStatus("gathering")
	r.UI.UpdateConfidence(sess.Confidence)

	// First user turn may carry the attached image.
	pendingImage := r.ImageURL

	for {
		fmt.Print("> ")
		if !r.Input.Scan() {
			return r.Input.Err()
		}
		line := strings.TrimSpace(r.Input.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit":
			r.say("system", "Session left open; resume it with the same entity.")
			return nil
		case "/status":
			r.printStatus(sess.ID)
			continue
		case "/abandon":
			if err := r.Manager.AbandonSession(ctx, sess.ID); err != nil {
				r.say("system", fmt.Sprintf("Abandon failed: %v", err))
				continue
			}
			r.say("system", "Session abandoned.")
			r.UI.UpdateStatus("abandoned")
			return nil
		case "/commit":
			rec, err := r.Manager.CommitToArchive(ctx, sess.ID)
			if err != nil {
				var mf *session.MissingFieldsError
				if errors.As(err, &mf) {
					r.say("system", fmt.Sprintf("Not yet: still missing %s.", strings.Join(mf.Missing, ", ")))
				} else {
					r.say("system", fmt.Sprintf("Commit failed: %v", err))
				}
				continue
			}
			r.say("system", fmt.Sprintf("Committed record %s.", rec.ID))
			r.UI.UpdateStatus("committed")
			return nil
		}

		res, err := r.Manager.Chat(ctx, sess.ID, line, pendingImage, r.Context)
		if err != nil {
			if errors.Is(err, session.ErrDialogueService) {
				r.say("system", "The dialogue service is unavailable; your message was not recorded. Try again.")
				continue
			}
			r.Observer.Log().Error().Err(err).Msg("Turn failed")
			return err
		}
		pendingImage = ""

		r.say(store.RoleUser, line)
		r.say(store.RoleAssistant, res.Message)

		r.UI.UpdateStatus(res.Phase)
		r.UI.UpdateConfidence(res.Confidence)

		for _, w := range res.Warnings {
			r.say("system", "⚠ "+w.Text)
		}
		if len(res.Suggestions) > 0 {
			r.say("system", "Possibly related: "+strings.Join(res.Suggestions, "; "))
		}
		if res.IsComplete {
			r.say("system", "All required fields recorded. Use /commit to archive, or keep refining.")
		}
	}
}

func (r *Runner) printStatus(sessionID string) {
	sess, err := r.Manager.GetSession(sessionID)
	if err != nil {
		r.say("system", fmt.Sprintf("Status unavailable: %v", err))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Confidence %.0f%%.", sess.Confidence*100)
	if missing := sess.Fields.Missing(); len(missing) > 0 {
		fmt.Fprintf(&b, " Still required: %s.", strings.Join(missing, ", "))
	} else {
		b.WriteString(" All required fields recorded.")
	}
	for _, name := range sess.Fields.Present() {
		v, _ := sess.Fields.Get(name)
		fmt.Fprintf(&b, "\n  %s: %s", name, v)
	}
	for _, a := range schema.Validate(sess.Fields).Warnings {
		fmt.Fprintf(&b, "\n  advisory: %s", a)
	}
	r.say("system", b.String())
}

func (r *Runner) say(role, msg string) {
	r.UI.Say(role, msg)
	switch role {
	case store.RoleUser:
		// Echoed by the terminal already; only the TUI needs it.
	case store.RoleAssistant:
		fmt.Printf("\narchivist: %s\n\n", msg)
	default:
		fmt.Printf("%s\n", msg)
	}
}
