package activitypub

import (
	"database/sql"
	"sync"
	"time"

	"github.com/deemkeen/stegodon/domain"
	"github.com/google/uuid"
)

// MockDatabase is an in-memory mock implementation of the Database interface for testing.
// It stores data in maps and provides full CRUD operations without requiring a real database.
type MockDatabase struct {
	mu sync.RWMutex

	// Storage maps
	Accounts        map[uuid.UUID]*domain.Account
	AccountsByUser  map[string]*domain.Account
	RemoteAccounts  map[uuid.UUID]*domain.RemoteAccount
	RemoteByURI     map[string]*domain.RemoteAccount
	RemoteByActor   map[string]*domain.RemoteAccount
	Follows         map[uuid.UUID]*domain.Follow
	FollowsByURI    map[string]*domain.Follow
	Activities      map[uuid.UUID]*domain.Activity
	ActivitiesByObj map[string]*domain.Activity
	DeliveryQueue   map[uuid.UUID]*domain.DeliveryQueueItem
	Notes           map[uuid.UUID]*domain.Note
	NotesByURI      map[string]*domain.Note
	FollowRequests  map[string]*domain.FollowRequest
	ReplayTokens    map[string]string
	Likes           map[string]*domain.Like

	// Error injection for testing error handling
	ForceError error
}

// NewMockDatabase creates a new mock database with initialized maps
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		Accounts:        make(map[uuid.UUID]*domain.Account),
		AccountsByUser:  make(map[string]*domain.Account),
		RemoteAccounts:  make(map[uuid.UUID]*domain.RemoteAccount),
		RemoteByURI:     make(map[string]*domain.RemoteAccount),
		RemoteByActor:   make(map[string]*domain.RemoteAccount),
		Follows:         make(map[uuid.UUID]*domain.Follow),
		FollowsByURI:    make(map[string]*domain.Follow),
		Activities:      make(map[uuid.UUID]*domain.Activity),
		ActivitiesByObj: make(map[string]*domain.Activity),
		DeliveryQueue:   make(map[uuid.UUID]*domain.DeliveryQueueItem),
		Notes:           make(map[uuid.UUID]*domain.Note),
		NotesByURI:      make(map[string]*domain.Note),
		FollowRequests:  make(map[string]*domain.FollowRequest),
		ReplayTokens:    make(map[string]string),
		Likes:           make(map[string]*domain.Like),
	}
}

// SetForceError sets an error to be returned by all operations
func (m *MockDatabase) SetForceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForceError = err
}

// AddAccount adds an account to the mock database
func (m *MockDatabase) AddAccount(acc *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[acc.Id] = acc
	m.AccountsByUser[acc.Username] = acc
}

// AddRemoteAccount adds a remote account to the mock database
func (m *MockDatabase) AddRemoteAccount(acc *domain.RemoteAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
}

// AddFollow adds a follow relationship to the mock database
func (m *MockDatabase) AddFollow(follow *domain.Follow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Follows[follow.Id] = follow
	if follow.URI != "" {
		m.FollowsByURI[follow.URI] = follow
	}
}

// AddActivity adds an activity to the mock database
func (m *MockDatabase) AddActivity(activity *domain.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Activities[activity.Id] = activity
	if activity.ObjectURI != "" {
		m.ActivitiesByObj[activity.ObjectURI] = activity
	}
}

// AddDeliveryQueueItem adds a delivery queue item to the mock database
func (m *MockDatabase) AddDeliveryQueueItem(item *domain.DeliveryQueueItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveryQueue[item.Id] = item
}

// Account operations

func (m *MockDatabase) ReadAccByUsername(username string) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.AccountsByUser[username]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.Accounts[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

// Remote account operations

func (m *MockDatabase) ReadRemoteAccountByURI(uri string) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteByURI[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteAccounts[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, acc
}

func (m *MockDatabase) ReadRemoteAccountByActorURI(actorURI string) (error, *domain.RemoteAccount) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	acc, ok := m.RemoteByActor[actorURI]
	if !ok {
		return nil, nil
	}
	return nil, acc
}

func (m *MockDatabase) CreateRemoteAccount(acc *domain.RemoteAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
	return nil
}

func (m *MockDatabase) UpdateRemoteAccount(acc *domain.RemoteAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.RemoteAccounts[acc.Id] = acc
	m.RemoteByURI[acc.ActorURI] = acc
	m.RemoteByActor[acc.ActorURI] = acc
	return nil
}

func (m *MockDatabase) DeleteRemoteAccount(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if acc, ok := m.RemoteAccounts[id]; ok {
		delete(m.RemoteByURI, acc.ActorURI)
		delete(m.RemoteByActor, acc.ActorURI)
	}
	delete(m.RemoteAccounts, id)
	return nil
}

// Follow operations

func (m *MockDatabase) CreateFollow(follow *domain.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Follows[follow.Id] = follow
	if follow.URI != "" {
		m.FollowsByURI[follow.URI] = follow
	}
	return nil
}

func (m *MockDatabase) ReadFollowByURI(uri string) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	follow, ok := m.FollowsByURI[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, follow
}

func (m *MockDatabase) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	for _, follow := range m.Follows {
		if follow.AccountId == accountId && follow.TargetAccountId == targetAccountId {
			return nil, follow
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) DeleteFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if follow, ok := m.FollowsByURI[uri]; ok {
		delete(m.Follows, follow.Id)
	}
	delete(m.FollowsByURI, uri)
	return nil
}

func (m *MockDatabase) AcceptFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if follow, ok := m.FollowsByURI[uri]; ok {
		follow.Accepted = true
	}
	return nil
}

func (m *MockDatabase) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var followers []domain.Follow
	for _, follow := range m.Follows {
		if follow.TargetAccountId == accountId && follow.Accepted {
			followers = append(followers, *follow)
		}
	}
	return nil, &followers
}

func (m *MockDatabase) DeleteFollowsByRemoteAccountId(remoteAccountId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	for id, follow := range m.Follows {
		if follow.AccountId == remoteAccountId || follow.TargetAccountId == remoteAccountId {
			if follow.URI != "" {
				delete(m.FollowsByURI, follow.URI)
			}
			delete(m.Follows, id)
		}
	}
	return nil
}

// Activity operations

func (m *MockDatabase) CreateActivity(activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Activities[activity.Id] = activity
	if activity.ObjectURI != "" {
		// Only set if not already present (first activity with this ObjectURI wins)
		// This matches real DB behavior where ReadActivityByObjectURI returns the first match
		if _, exists := m.ActivitiesByObj[activity.ObjectURI]; !exists {
			m.ActivitiesByObj[activity.ObjectURI] = activity
		}
	}
	return nil
}

func (m *MockDatabase) UpdateActivity(activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.Activities[activity.Id] = activity
	if activity.ObjectURI != "" {
		m.ActivitiesByObj[activity.ObjectURI] = activity
	}
	return nil
}

func (m *MockDatabase) ReadActivityByObjectURI(objectURI string) (error, *domain.Activity) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	activity, ok := m.ActivitiesByObj[objectURI]
	if !ok {
		return nil, nil
	}
	return nil, activity
}

func (m *MockDatabase) DeleteActivity(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if activity, ok := m.Activities[id]; ok {
		delete(m.ActivitiesByObj, activity.ObjectURI)
	}
	delete(m.Activities, id)
	return nil
}

// Delivery queue operations

func (m *MockDatabase) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	m.DeliveryQueue[item.Id] = item
	return nil
}

func (m *MockDatabase) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var items []domain.DeliveryQueueItem
	now := time.Now()
	count := 0
	for _, item := range m.DeliveryQueue {
		if !item.DeadLettered && (item.NextRetryAt.Before(now) || item.NextRetryAt.Equal(now)) {
			items = append(items, *item)
			count++
			if count >= limit {
				break
			}
		}
	}
	return nil, &items
}

func (m *MockDatabase) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if item, ok := m.DeliveryQueue[id]; ok {
		item.Attempts = attempts
		item.NextRetryAt = nextRetry
	}
	return nil
}

func (m *MockDatabase) DeleteDelivery(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.DeliveryQueue, id)
	return nil
}

// Note operations

func (m *MockDatabase) ReadNoteByURI(objectURI string) (error, *domain.Note) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	note, ok := m.NotesByURI[objectURI]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, note
}

func (m *MockDatabase) ReadNoteId(id uuid.UUID) (error, *domain.Note) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	note, ok := m.Notes[id]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, note
}

func (m *MockDatabase) CreateNote(userId uuid.UUID, message string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return uuid.Nil, m.ForceError
	}
	note := &domain.Note{
		Id:        uuid.New(),
		CreatedBy: userId.String(),
		Message:   message,
		CreatedAt: time.Now(),
	}
	m.Notes[note.Id] = note
	return note.Id, nil
}

func (m *MockDatabase) UpdateNote(noteId uuid.UUID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	note, ok := m.Notes[noteId]
	if !ok {
		return sql.ErrNoRows
	}
	note.Message = message
	now := time.Now()
	note.EditedAt = &now
	return nil
}

func (m *MockDatabase) DeleteNoteById(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	note, ok := m.Notes[noteId]
	if !ok {
		return sql.ErrNoRows
	}
	delete(m.Notes, noteId)
	if note.ObjectURI != "" {
		delete(m.NotesByURI, note.ObjectURI)
	}
	return nil
}

// AddNote adds a note to the mock database
func (m *MockDatabase) AddNote(note *domain.Note) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notes[note.Id] = note
	if note.ObjectURI != "" {
		m.NotesByURI[note.ObjectURI] = note
	}
}

// Mention operations

func (m *MockDatabase) CreateNoteMention(mention *domain.NoteMention) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

// Engagement count operations

func (m *MockDatabase) IncrementReplyCountByURI(parentURI string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.NotesByURI[parentURI]; ok {
		note.ReplyCount++
	}
	return nil
}

// Renote/quote-renote operations

func (m *MockDatabase) CreateRenote(userId uuid.UUID, renoteOfURI string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return uuid.Nil, m.ForceError
	}
	id := uuid.New()
	m.Notes[id] = &domain.Note{Id: id, CreatedBy: userId.String(), RenoteOfURI: renoteOfURI}
	return id, nil
}

func (m *MockDatabase) CreateQuoteRenote(userId uuid.UUID, message string, quoteURL string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return uuid.Nil, m.ForceError
	}
	id := uuid.New()
	m.Notes[id] = &domain.Note{Id: id, CreatedBy: userId.String(), Message: message, QuoteURL: quoteURL}
	return id, nil
}

func (m *MockDatabase) ReadNoteRenoteAndQuoteInfo(noteId uuid.UUID) (string, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return "", "", m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		return note.RenoteOfURI, note.QuoteURL, nil
	}
	return "", "", sql.ErrNoRows
}

func (m *MockDatabase) UpdateNoteThreadId(noteId uuid.UUID, threadId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		if parsed, err := uuid.Parse(threadId); err == nil {
			note.ThreadId = parsed
		}
	}
	return nil
}

func (m *MockDatabase) CreateNoteEditHistory(noteId uuid.UUID, previousMessage string) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

func (m *MockDatabase) ReadNoteEditHistory(noteId uuid.UUID) (error, []domain.NoteRevision) {
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	return nil, nil
}

// Locked-account follow request operations

func (m *MockDatabase) UpdateAccountLocked(accountId uuid.UUID, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if acc, ok := m.Accounts[accountId]; ok {
		acc.Locked = locked
	}
	return nil
}

func (m *MockDatabase) CreateFollowRequest(req *domain.FollowRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if m.FollowRequests == nil {
		m.FollowRequests = make(map[string]*domain.FollowRequest)
	}
	m.FollowRequests[req.URI] = req
	return nil
}

func (m *MockDatabase) ReadFollowRequestByURI(uri string) (error, *domain.FollowRequest) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	req, ok := m.FollowRequests[uri]
	if !ok {
		return sql.ErrNoRows, nil
	}
	return nil, req
}

func (m *MockDatabase) ReadPendingFollowRequestsByTarget(targetAccountId uuid.UUID) (error, *[]domain.FollowRequest) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	var requests []domain.FollowRequest
	for _, req := range m.FollowRequests {
		if req.TargetAccountId == targetAccountId {
			requests = append(requests, *req)
		}
	}
	return nil, &requests
}

func (m *MockDatabase) DeleteFollowRequestByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.FollowRequests, uri)
	return nil
}

// Replay defense

func (m *MockDatabase) SeenReplayToken(activityURI, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	if m.ReplayTokens == nil {
		m.ReplayTokens = make(map[string]string)
	}
	if _, ok := m.ReplayTokens[activityURI]; ok {
		return true, nil
	}
	m.ReplayTokens[activityURI] = digest
	return false, nil
}

func (m *MockDatabase) PruneReplayTokens(olderThan time.Time) (int64, error) {
	if m.ForceError != nil {
		return 0, m.ForceError
	}
	return 0, nil
}

// Like/reaction operations

func (m *MockDatabase) CreateLike(like *domain.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if m.Likes == nil {
		m.Likes = make(map[string]*domain.Like)
	}
	m.Likes[like.AccountId.String()+"|"+like.NoteId.String()] = like
	return nil
}

func (m *MockDatabase) HasLikeByURI(uri string) (bool, error) {
	if m.ForceError != nil {
		return false, m.ForceError
	}
	return false, nil
}

func (m *MockDatabase) HasLike(accountId, noteId uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return false, m.ForceError
	}
	_, ok := m.Likes[accountId.String()+"|"+noteId.String()]
	return ok, nil
}

func (m *MockDatabase) ReadLikeByAccountAndNote(accountId, noteId uuid.UUID) (error, *domain.Like) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	like, ok := m.Likes[accountId.String()+"|"+noteId.String()]
	if !ok {
		return nil, nil
	}
	return nil, like
}

func (m *MockDatabase) DeleteLikeByAccountAndNote(accountId, noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	delete(m.Likes, accountId.String()+"|"+noteId.String())
	return nil
}

func (m *MockDatabase) IncrementLikeCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		note.LikeCount++
	}
	return nil
}

func (m *MockDatabase) DecrementLikeCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok && note.LikeCount > 0 {
		note.LikeCount--
	}
	return nil
}

// Boost operations

func (m *MockDatabase) CreateBoost(boost *domain.Boost) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

func (m *MockDatabase) HasBoost(accountId, noteId uuid.UUID) (bool, error) {
	if m.ForceError != nil {
		return false, m.ForceError
	}
	return false, nil
}

func (m *MockDatabase) DeleteBoostByAccountAndNote(accountId, noteId uuid.UUID) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

func (m *MockDatabase) IncrementBoostCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok {
		note.BoostCount++
	}
	return nil
}

func (m *MockDatabase) DecrementBoostCountByNoteId(noteId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if note, ok := m.Notes[noteId]; ok && note.BoostCount > 0 {
		note.BoostCount--
	}
	return nil
}

// Relay operations

func (m *MockDatabase) CreateRelay(relay *domain.Relay) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

func (m *MockDatabase) ReadActiveRelays() (error, *[]domain.Relay) {
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	return nil, &[]domain.Relay{}
}

func (m *MockDatabase) ReadActiveUnpausedRelays() (error, *[]domain.Relay) {
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	return nil, &[]domain.Relay{}
}

func (m *MockDatabase) ReadRelayByActorURI(actorURI string) (error, *domain.Relay) {
	if m.ForceError != nil {
		return m.ForceError, nil
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) UpdateRelayStatus(id uuid.UUID, status string, acceptedAt *time.Time) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

func (m *MockDatabase) DeleteRelay(id uuid.UUID) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

// Notification operations

func (m *MockDatabase) CreateNotification(notification *domain.Notification) error {
	if m.ForceError != nil {
		return m.ForceError
	}
	return nil
}

// Delivery queue extras

func (m *MockDatabase) EnqueueDeliveryFor(item *domain.DeliveryQueueItem, signingAccountId uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	item.SigningAccountId = signingAccountId
	m.DeliveryQueue[item.Id] = item
	return nil
}

func (m *MockDatabase) UpdateDeliveryDeadLetter(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ForceError != nil {
		return m.ForceError
	}
	if item, ok := m.DeliveryQueue[id]; ok {
		item.DeadLettered = true
	}
	return nil
}

// Ensure MockDatabase implements Database interface
var _ Database = (*MockDatabase)(nil)
