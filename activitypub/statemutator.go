package activitypub

import (
	"fmt"
	"log"

	"github.com/deemkeen/stegodon/domain"
	"github.com/deemkeen/stegodon/util"
	"github.com/google/uuid"
)

// StateMutator is the single choke point for note/follow/reaction
// mutations: write the row, publish the resulting EventBus event, then
// federate in the background — the outbox-pattern guarantee spec.md
// §4.1 requires, so every caller gets identical local-effect-then-fan-out
// behavior instead of repeating it ad hoc (as `ui/writenote`,
// `ui/myposts/notepager`, `ui/followuser`, `ui/following` previously did
// inline, one copy per call site).

// CreateNoteWithDeps stores a new note — plain, quote renote, or pure
// renote, per `save.RenoteOfURI`/`save.QuoteText` — and, if federation
// is enabled, sends the matching activity (Create or Announce) to
// followers in the background.
func CreateNoteWithDeps(save *domain.SaveNote, conf *util.AppConfig, database Database) (uuid.UUID, error) {
	var noteId uuid.UUID
	var err error
	switch {
	case save.RenoteOfURI != "" && save.QuoteText != "":
		noteId, err = database.CreateQuoteRenote(save.UserId, save.QuoteText, save.RenoteOfURI)
	case save.RenoteOfURI != "":
		noteId, err = database.CreateRenote(save.UserId, save.RenoteOfURI)
	default:
		noteId, err = database.CreateNote(save.UserId, save.Message)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create note: %w", err)
	}
	userId := save.UserId

	PublishEvent(ChannelNotes, EventNoteCreated, map[string]any{"noteId": noteId, "userId": userId})

	if conf.Conf.WithAp {
		go federateNoteCreate(noteId, userId, database, conf)
	}

	return noteId, nil
}

func federateNoteCreate(noteId, userId uuid.UUID, database Database, conf *util.AppConfig) {
	err, note := database.ReadNoteId(noteId)
	if err != nil || note == nil {
		log.Printf("StateMutator: failed to read created note %s for federation: %v", noteId, err)
		return
	}
	err, account := database.ReadAccById(userId)
	if err != nil || account == nil {
		log.Printf("StateMutator: failed to get account for federation: %v", err)
		return
	}

	// ReadNoteId doesn't scan renote_of_uri/quote_url, so fetch them
	// separately here — this is where the note's shape (pure renote vs.
	// quote vs. plain Create) is decided before handing off to the
	// builder in outbox.go.
	renoteOfURI, quoteURL, err := database.ReadNoteRenoteAndQuoteInfo(noteId)
	if err != nil {
		log.Printf("StateMutator: failed to read renote/quote info for note %s: %v", noteId, err)
	} else {
		note.RenoteOfURI = renoteOfURI
		note.QuoteURL = quoteURL
	}

	if note.IsPureRenote() {
		if err := SendAnnounceWithDeps(note, account, conf, database); err != nil {
			log.Printf("StateMutator: failed to federate renote %s: %v", noteId, err)
		}
		return
	}

	if err := SendCreateWithDeps(note, account, conf, database); err != nil {
		log.Printf("StateMutator: failed to federate note %s: %v", noteId, err)
	}
}

// UpdateNoteWithDeps updates a note's message and, if federation is
// enabled, sends an Update activity to followers in the background.
func UpdateNoteWithDeps(noteId uuid.UUID, message string, conf *util.AppConfig, database Database) error {
	// Snapshot the current text into the edit history before overwriting it.
	if err, prev := database.ReadNoteId(noteId); err == nil && prev != nil {
		if err := database.CreateNoteEditHistory(noteId, prev.Message); err != nil {
			log.Printf("StateMutator: failed to record edit history for note %s: %v", noteId, err)
		}
	}

	if err := database.UpdateNote(noteId, message); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	PublishEvent(ChannelNotes, EventNoteUpdated, map[string]any{"noteId": noteId})

	if conf.Conf.WithAp {
		go federateNoteUpdate(noteId, database, conf)
	}

	return nil
}

func federateNoteUpdate(noteId uuid.UUID, database Database, conf *util.AppConfig) {
	err, note := database.ReadNoteId(noteId)
	if err != nil || note == nil {
		log.Printf("StateMutator: failed to read updated note %s for federation: %v", noteId, err)
		return
	}
	err, account := database.ReadAccByUsername(note.CreatedBy)
	if err != nil || account == nil {
		log.Printf("StateMutator: failed to get account for federation: %v", err)
		return
	}
	if err := SendUpdateWithDeps(note, account, conf, database); err != nil {
		log.Printf("StateMutator: failed to federate note update %s: %v", noteId, err)
	}
}

// DeleteNoteWithDeps deletes a note and, if federation is enabled, sends
// a Delete activity to followers in the background. The author lookup
// happens before deletion since the note row disappears after.
func DeleteNoteWithDeps(noteId uuid.UUID, conf *util.AppConfig, database Database) error {
	var authorUsername string
	if err, note := database.ReadNoteId(noteId); err == nil && note != nil {
		authorUsername = note.CreatedBy
	}

	if err := database.DeleteNoteById(noteId); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	PublishEvent(ChannelNotes, EventNoteDeleted, map[string]any{"noteId": noteId})

	if conf.Conf.WithAp && authorUsername != "" {
		go federateNoteDelete(noteId, authorUsername, database, conf)
	}

	return nil
}

func federateNoteDelete(noteId uuid.UUID, authorUsername string, database Database, conf *util.AppConfig) {
	err, account := database.ReadAccByUsername(authorUsername)
	if err != nil || account == nil {
		log.Printf("StateMutator: failed to get account for delete federation: %v", err)
		return
	}
	if err := SendDeleteWithDeps(noteId, account, conf, database); err != nil {
		log.Printf("StateMutator: failed to federate note deletion %s: %v", noteId, err)
	}
}

// FollowWithDeps creates a local Follow record (so the UI can show
// "pending") and sends the Follow activity, both synchronously before
// it returns. SendFollowWithDeps already performs the local write and
// self/duplicate checks, so this wraps it only to add the EventBus
// publish every other StateMutator operation gets.
func FollowWithDeps(localAccount *domain.Account, remoteActorURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	if err := SendFollowWithDeps(localAccount, remoteActorURI, conf, client, database); err != nil {
		return err
	}
	PublishEvent(ChannelFollows, EventFollowCreated, map[string]any{
		"accountId": localAccount.Id,
		"targetURI": remoteActorURI,
	})
	return nil
}

// UnfollowWithDeps sends an Undo Follow and publishes the resulting
// follow.removed event; the caller is responsible for having already
// deleted (or being about to delete) the local Follow row, matching
// `ui/following`'s existing call order.
func UnfollowWithDeps(localAccount *domain.Account, follow *domain.Follow, remoteActor *domain.RemoteAccount, conf *util.AppConfig, client HTTPClient) error {
	if err := SendUndoWithDeps(localAccount, follow, remoteActor, conf, client); err != nil {
		return err
	}
	PublishEvent(ChannelFollows, EventFollowRemoved, map[string]any{
		"accountId": localAccount.Id,
		"targetId":  remoteActor.Id,
	})
	return nil
}

// ReactWithDeps sends a Like for a note and publishes a reaction.added
// event. Local reaction bookkeeping (incrementing a like counter on a
// local note) is the caller's responsibility, same as `SendLike`'s
// existing contract.
func ReactWithDeps(localAccount *domain.Account, noteURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	if err := SendLikeWithDeps(localAccount, noteURI, conf, client, database); err != nil {
		return err
	}
	PublishEvent(ChannelReactions, EventReactionAdded, map[string]any{
		"accountId": localAccount.Id,
		"noteURI":   noteURI,
	})
	return nil
}

// UnreactWithDeps sends an Undo Like and publishes a reaction.removed event.
func UnreactWithDeps(localAccount *domain.Account, noteURI, likeURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	if err := SendUndoLikeWithDeps(localAccount, noteURI, likeURI, conf, client, database); err != nil {
		return err
	}
	PublishEvent(ChannelReactions, EventReactionRemoved, map[string]any{
		"accountId": localAccount.Id,
		"noteURI":   noteURI,
	})
	return nil
}
