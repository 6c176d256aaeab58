package service

import (
	"context"
	"convai-builder-go/internal/model"
	"convai-builder-go/internal/repository"
	"convai-builder-go/pkg/llm"
	"convai-builder-go/pkg/tasks"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// memStore 是测试用的内存数据层，同时实现机器人、会话和消息仓库。
type memStore struct {
	mu            sync.Mutex
	bots          map[string]*model.Bot
	conversations map[uint]*model.Conversation
	messages      []*model.Message
	nextConvID    uint
	nextMsgID     uint
	clock         time.Time
}

func newMemStore() *memStore {
	return &memStore{
		bots:          map[string]*model.Bot{},
		conversations: map[uint]*model.Conversation{},
		clock:         time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type memBotRepo struct{ *memStore }

func (r memBotRepo) Create(bot *model.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bot.ID == "" {
		bot.ID = "bot-" + string(rune('a'+len(r.bots)))
	}
	bot.CreatedAt = r.tick()
	cp := *bot
	r.bots[bot.ID] = &cp
	return nil
}

func (r memBotRepo) Update(bot *model.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[bot.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *bot
	r.bots[bot.ID] = &cp
	return nil
}

func (r memBotRepo) UpdateVoice(id, voice string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.VoiceName = voice
	return nil
}

func (r memBotRepo) FindByID(id string) (*model.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *b
	return &cp, nil
}

func (r memBotRepo) FindAll() ([]model.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Bot, 0, len(r.bots))
	for _, b := range r.bots {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memBotRepo) List(offset, limit int) ([]model.Bot, int64, error) {
	all, _ := r.FindAll()
	total := int64(len(all))
	if offset >= len(all) {
		return []model.Bot{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r memBotRepo) Stats(ids []string) (map[string]model.BotStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]model.BotStats{}
	for _, id := range ids {
		st := model.BotStats{BotID: id}
		for _, c := range r.conversations {
			if c.BotID != id {
				continue
			}
			st.ConversationCount++
			for _, m := range r.messages {
				if m.ConversationID == c.ID {
					st.MessageCount++
				}
			}
		}
		out[id] = st
	}
	return out, nil
}

func (r memBotRepo) Delete(id string) (*repository.BotDeletion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	deletion := &repository.BotDeletion{}
	for cid, c := range r.conversations {
		if c.BotID != id {
			continue
		}
		deletion.ConversationIDs = append(deletion.ConversationIDs, cid)
		deletion.AudioObjects = append(deletion.AudioObjects, r.dropMessagesLocked(cid)...)
		delete(r.conversations, cid)
	}
	delete(r.bots, id)
	return deletion, nil
}

func (s *memStore) dropMessagesLocked(conversationID uint) []string {
	var objects []string
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
			continue
		}
		if m.HasAudio() {
			objects = append(objects, *m.AudioObject)
		}
	}
	s.messages = kept
	return objects
}

type memConversationRepo struct{ *memStore }

func (r memConversationRepo) GetOrCreate(botID, sessionID string) (*model.Conversation, error) {
	if c, err := r.FindBySession(botID, sessionID); err == nil {
		return c, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextConvID++
	now := r.tick()
	c := &model.Conversation{ID: r.nextConvID, BotID: botID, SessionID: sessionID, StartedAt: now, LastActivity: now}
	r.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r memConversationRepo) FindBySession(botID, sessionID string) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.BotID == botID && c.SessionID == sessionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memConversationRepo) FindByID(id uint) (*model.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (r memConversationRepo) ListByBot(botID string) ([]model.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ConversationSummary
	for _, c := range r.conversations {
		if c.BotID != botID {
			continue
		}
		var n int64
		for _, m := range r.messages {
			if m.ConversationID == c.ID {
				n++
			}
		}
		out = append(out, model.ConversationSummary{ID: c.ID, SessionID: c.SessionID, MessageCount: n})
	}
	return out, nil
}

func (r memConversationRepo) Touch(id uint, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		c.LastActivity = at
	}
	return nil
}

func (r memConversationRepo) ClearMessages(id uint) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropMessagesLocked(id), nil
}

type memMessageRepo struct{ *memStore }

func (r memMessageRepo) Create(msg *model.Message) error {
	if msg.Type == model.MessageTypeUser && msg.HasAudio() {
		return model.ErrAudioOnUserMessage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextMsgID++
	msg.ID = r.nextMsgID
	msg.CreatedAt = r.tick()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r memMessageRepo) FindByID(id uint) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			cp := *m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memMessageRepo) ListByConversation(conversationID uint) ([]model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Message{}
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r memMessageRepo) Recent(conversationID uint, n int) ([]model.Message, error) {
	all, _ := r.ListByConversation(conversationID)
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (r memMessageRepo) AttachAudio(msg *model.Message, object string, meta datatypes.JSON) error {
	if msg.Type != model.MessageTypeAssistant {
		return model.ErrAudioOnUserMessage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == msg.ID {
			obj := object
			m.AudioObject = &obj
			m.Meta = meta
		}
	}
	msg.AudioObject = &object
	msg.Meta = meta
	return nil
}

func (r memMessageRepo) SetMeta(id uint, meta datatypes.JSON) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			m.Meta = meta
		}
	}
	return nil
}

func (r memMessageRepo) DetachAudio(objects []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := map[string]bool{}
	for _, o := range objects {
		set[o] = true
	}
	var n int64
	for _, m := range r.messages {
		if m.HasAudio() && set[*m.AudioObject] {
			m.AudioObject = nil
			n++
		}
	}
	return n, nil
}

type memHistoryCache struct {
	mu      sync.Mutex
	entries map[uint][]model.ChatMessage
	err     error
}

func newMemHistoryCache() *memHistoryCache {
	return &memHistoryCache{entries: map[uint][]model.ChatMessage{}}
}

func (c *memHistoryCache) Get(_ context.Context, id uint) ([]model.ChatMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	msgs, ok := c.entries[id]
	return append([]model.ChatMessage(nil), msgs...), ok, nil
}

func (c *memHistoryCache) Set(_ context.Context, id uint, msgs []model.ChatMessage, window int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	c.entries[id] = append([]model.ChatMessage{}, msgs...)
	return nil
}

func (c *memHistoryCache) Append(_ context.Context, id uint, window int, msgs ...model.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.entries[id]
	if !ok {
		return nil
	}
	cur = append(cur, msgs...)
	if len(cur) > window {
		cur = cur[len(cur)-window:]
	}
	c.entries[id] = cur
	return nil
}

func (c *memHistoryCache) Invalidate(_ context.Context, ids ...uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
	return nil
}

type fakeTurnLock struct {
	held map[uint]bool
	err  error
}

func (l *fakeTurnLock) Acquire(_ context.Context, id uint, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held == nil {
		l.held = map[uint]bool{}
	}
	if l.held[id] {
		return nil, repository.ErrLockHeld
	}
	l.held[id] = true
	return func() { delete(l.held, id) }, nil
}

// fakeLLM 记录收到的消息并返回预设回复。
type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	chunks  []string
	calls   [][]llm.Message
	lastGen *llm.GenerationParams
}

func (f *fakeLLM) Complete(_ context.Context, msgs []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	f.lastGen = gen
	return f.reply, f.err
}

func (f *fakeLLM) StreamChatMessages(_ context.Context, msgs []llm.Message, gen *llm.GenerationParams, w llm.MessageWriter) error {
	f.mu.Lock()
	f.calls = append(f.calls, msgs)
	f.lastGen = gen
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, c := range f.chunks {
		if err := w.WriteMessage(1, []byte(c)); err != nil {
			return err
		}
	}
	return nil
}

type fakeSynth struct {
	err   error
	texts []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("ID3-audio"), nil
}

type memAudioStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	ages    map[string]time.Time
}

func newMemAudioStore() *memAudioStore {
	return &memAudioStore{objects: map[string][]byte{}, ages: map[string]time.Time{}}
}

func (s *memAudioStore) Put(_ context.Context, name string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = data
	s.ages[name] = time.Now()
	return nil
}

func (s *memAudioStore) PresignedURL(_ context.Context, name string) (string, error) {
	return "https://audio.test/" + name, nil
}

func (s *memAudioStore) Remove(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.objects, n)
		delete(s.ages, n)
	}
	return nil
}

func (s *memAudioStore) ListOlderThan(_ context.Context, prefix string, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for n, t := range s.ages {
		if strings.HasPrefix(n, prefix) && t.Before(cutoff) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []tasks.Task
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, t tasks.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, t)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.tasks))
	for _, t := range p.tasks {
		out = append(out, t.Type)
	}
	return out
}

type memUsageRepo struct {
	rows map[string]*model.TTSUsage
}

func newMemUsageRepo() *memUsageRepo { return &memUsageRepo{rows: map[string]*model.TTSUsage{}} }

func (r *memUsageRepo) FindOrCreate(month string, limit int) (*model.TTSUsage, error) {
	u, ok := r.rows[month]
	if !ok {
		u = &model.TTSUsage{Month: month, CharactersLimit: limit}
		r.rows[month] = u
	}
	cp := *u
	return &cp, nil
}

func (r *memUsageRepo) AddCharacters(month string, n, limit int) (*model.TTSUsage, error) {
	if _, err := r.FindOrCreate(month, limit); err != nil {
		return nil, err
	}
	r.rows[month].CharactersUsed += n
	cp := *r.rows[month]
	return &cp, nil
}

func (r *memUsageRepo) MarkAlertSent(month string, at time.Time) (bool, error) {
	u, ok := r.rows[month]
	if !ok {
		return false, errors.New("no usage row")
	}
	if u.AlertSentAt != nil {
		return false, nil
	}
	u.AlertSentAt = &at
	return true, nil
}

type recordingMailer struct {
	subjects []string
}

func (m *recordingMailer) Send(subject, _ string) error {
	m.subjects = append(m.subjects, subject)
	return nil
}
