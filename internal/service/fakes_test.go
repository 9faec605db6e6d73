package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/statusbeacon/bridge-server-go/internal/model"
	"github.com/statusbeacon/bridge-server-go/internal/repository"
)

// In-memory fakes for the repository interfaces. Each fake keeps the same
// observable semantics as the Postgres implementation (nil on missing rows,
// single-use consume, upsert-on-conflict).

type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*model.Device // by device_uuid
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{devices: make(map[string]*model.Device)}
}

func (r *fakeDeviceRepo) put(d *model.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.devices[d.DeviceUUID] = &cp
}

func (r *fakeDeviceRepo) FindByUUID(_ context.Context, deviceUUID string) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceUUID]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeDeviceRepo) FindBySerial(_ context.Context, serialNumber string) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.SerialNumber == serialNumber {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) FindByPairingCode(_ context.Context, code string) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.PairingCode != nil && *d.PairingCode == code {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeviceRepo) List(_ context.Context) ([]model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Device
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out, nil
}

func (r *fakeDeviceRepo) Create(_ context.Context, params model.CreateDeviceParams) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.SerialNumber == params.SerialNumber {
			d.KeyHash = params.KeyHash
			d.UpdatedAt = time.Now()
			cp := *d
			return &cp, nil
		}
	}
	d := &model.Device{
		DeviceUUID:   params.DeviceUUID,
		SerialNumber: params.SerialNumber,
		DeviceID:     params.DeviceID,
		KeyHash:      params.KeyHash,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	r.devices[d.DeviceUUID] = d
	cp := *d
	return &cp, nil
}

func (r *fakeDeviceRepo) RotateKeyHash(_ context.Context, deviceUUID, keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceUUID]; ok {
		d.KeyHash = keyHash
	}
	return nil
}

func (r *fakeDeviceRepo) StampPairingCode(_ context.Context, deviceUUID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceUUID]; ok {
		now := time.Now()
		d.PairingCode = &code
		d.PairingCodeIssuedAt = &now
	}
	return nil
}

func (r *fakeDeviceRepo) StampApproval(_ context.Context, deviceUUID, userUUID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceUUID]; ok {
		d.UserApprovedBy = &userUUID
		d.ApprovedAt = &at
	}
	return nil
}

type fakePairingCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*model.PairingCode // by code
}

func newFakePairingCodeRepo() *fakePairingCodeRepo {
	return &fakePairingCodeRepo{codes: make(map[string]*model.PairingCode)}
}

func (r *fakePairingCodeRepo) FindByCode(_ context.Context, code string) (*model.PairingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pc, ok := r.codes[code]; ok {
		cp := *pc
		return &cp, nil
	}
	return nil, nil
}

func (r *fakePairingCodeRepo) Replace(_ context.Context, code, deviceUUID, serialNumber string) (*model.PairingCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c, pc := range r.codes {
		if pc.DeviceUUID == deviceUUID {
			delete(r.codes, c)
		}
	}
	pc := &model.PairingCode{
		Code:         code,
		DeviceUUID:   deviceUUID,
		SerialNumber: serialNumber,
		CreatedAt:    time.Now(),
	}
	r.codes[code] = pc
	cp := *pc
	return &cp, nil
}

func (r *fakePairingCodeRepo) Consume(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code]; ok {
		delete(r.codes, code)
		return true, nil
	}
	return false, nil
}

func (r *fakePairingCodeRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for c, pc := range r.codes {
		if time.Since(pc.CreatedAt) > 240*time.Second {
			delete(r.codes, c)
			n++
		}
	}
	return n, nil
}

type fakePairingRepo struct {
	mu       sync.Mutex
	pairings map[string]*model.Pairing // by device_uuid
}

func newFakePairingRepo() *fakePairingRepo {
	return &fakePairingRepo{pairings: make(map[string]*model.Pairing)}
}

func (r *fakePairingRepo) put(p *model.Pairing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.pairings[p.DeviceUUID] = &cp
}

func (r *fakePairingRepo) get(deviceUUID string) *model.Pairing {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairings[deviceUUID]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (r *fakePairingRepo) FindByDeviceUUID(_ context.Context, deviceUUID string) (*model.Pairing, error) {
	return r.get(deviceUUID), nil
}

func (r *fakePairingRepo) ListByUserUUID(_ context.Context, userUUID string) ([]model.Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Pairing
	for _, p := range r.pairings {
		if p.UserUUID != nil && *p.UserUUID == userUUID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePairingRepo) EnsureForDevice(_ context.Context, deviceUUID string) (*model.Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairings[deviceUUID]; ok {
		cp := *p
		return &cp, nil
	}
	p := &model.Pairing{
		ID:          fmt.Sprintf("pairing-%d", len(r.pairings)+1),
		DeviceUUID:  deviceUUID,
		WebexStatus: model.PresenceOffline,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	r.pairings[deviceUUID] = p
	cp := *p
	return &cp, nil
}

func (r *fakePairingRepo) SetUserUUID(_ context.Context, deviceUUID, userUUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairings[deviceUUID]; ok {
		p.UserUUID = &userUUID
	}
	return nil
}

func (r *fakePairingRepo) UpdateAppState(_ context.Context, deviceUUID string, params model.UpdateStateParams, seenAt time.Time) (*model.Pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairings[deviceUUID]
	if !ok {
		return nil, nil
	}
	if params.WebexStatus != nil {
		p.WebexStatus = model.PresenceStatus(*params.WebexStatus)
	}
	if params.CameraOn != nil {
		p.CameraOn = *params.CameraOn
	}
	if params.MicMuted != nil {
		p.MicMuted = *params.MicMuted
	}
	if params.InCall != nil {
		p.InCall = *params.InCall
	}
	if params.DisplayName != nil {
		p.DisplayName = params.DisplayName
	}
	p.AppConnected = true
	p.AppLastSeen = &seenAt
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (r *fakePairingRepo) UpdateWebexStatus(_ context.Context, deviceUUID string, status model.PresenceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairings[deviceUUID]; ok {
		p.WebexStatus = status
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (r *fakePairingRepo) StampDeviceSeen(_ context.Context, deviceUUID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pairings[deviceUUID]; ok {
		p.DeviceConnected = true
		p.DeviceLastSeen = &at
	}
	return nil
}

func (r *fakePairingRepo) ListUserPollingUsers(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.pairings {
		if p.UserPollingEnabled && p.UserUUID != nil && !seen[*p.UserUUID] {
			seen[*p.UserUUID] = true
			out = append(out, *p.UserUUID)
		}
	}
	return out, nil
}

type fakeCommandRepo struct {
	mu       sync.Mutex
	commands map[string]*model.Command
	nextID   int
	failFK   bool
}

func newFakeCommandRepo() *fakeCommandRepo {
	return &fakeCommandRepo{commands: make(map[string]*model.Command)}
}

func (r *fakeCommandRepo) FindByID(_ context.Context, id string) (*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.commands[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeCommandRepo) Create(_ context.Context, params model.CreateCommandParams) (*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failFK {
		return nil, repository.ErrForeignKey
	}
	r.nextID++
	c := &model.Command{
		ID:           fmt.Sprintf("cmd-%d", r.nextID),
		DeviceUUID:   params.DeviceUUID,
		SerialNumber: params.SerialNumber,
		Command:      params.Command,
		Payload:      params.Payload,
		Status:       model.CommandPending,
		ExpiresAt:    params.ExpiresAt,
		CreatedAt:    time.Now(),
	}
	r.commands[c.ID] = c
	cp := *c
	return &cp, nil
}

func (r *fakeCommandRepo) ListPending(_ context.Context, deviceUUID string) ([]model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Command
	for _, c := range r.commands {
		if c.DeviceUUID == deviceUUID && c.Status == model.CommandPending && c.ExpiresAt.After(time.Now()) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCommandRepo) Ack(_ context.Context, params model.AckCommandParams) (*model.Command, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.commands[params.CommandID]
	if !ok || c.Status != model.CommandPending {
		return nil, nil
	}
	now := time.Now()
	c.Status = model.CommandAcked
	c.Result = params.Result
	c.Error = params.Error
	c.AckedAt = &now
	cp := *c
	return &cp, nil
}

func (r *fakeCommandRepo) MarkExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.commands {
		if c.Status == model.CommandPending && c.ExpiresAt.Before(time.Now()) {
			c.Status = model.CommandExpired
			n++
		}
	}
	return n, nil
}

type fakeMembershipRepo struct {
	mu      sync.Mutex
	members map[string]bool // "user|device"
}

func newFakeMembershipRepo() *fakeMembershipRepo {
	return &fakeMembershipRepo{members: make(map[string]bool)}
}

func (r *fakeMembershipRepo) Upsert(_ context.Context, userUUID, deviceUUID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[userUUID+"|"+deviceUUID] = true
	return nil
}

func (r *fakeMembershipRepo) has(userUUID, deviceUUID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[userUUID+"|"+deviceUUID]
}

type fakeOAuthTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*model.OAuthToken
	nextID int
}

func newFakeOAuthTokenRepo() *fakeOAuthTokenRepo {
	return &fakeOAuthTokenRepo{tokens: make(map[string]*model.OAuthToken)}
}

func (r *fakeOAuthTokenRepo) put(t *model.OAuthToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.ID] = &cp
}

func (r *fakeOAuthTokenRepo) FindByID(_ context.Context, id string) (*model.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOAuthTokenRepo) FindByProviderAndDevice(_ context.Context, provider, deviceUUID string) (*model.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Provider == provider && t.OwnerScope == model.ScopeDevice && t.DeviceUUID != nil && *t.DeviceUUID == deviceUUID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOAuthTokenRepo) FindByProviderAndUser(_ context.Context, provider, userUUID string) (*model.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.Provider == provider && t.OwnerScope == model.ScopeUser && t.UserUUID != nil && *t.UserUUID == userUUID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeOAuthTokenRepo) ListByScope(_ context.Context, scope model.OwnerScope) ([]model.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.OAuthToken
	for _, t := range r.tokens {
		if t.OwnerScope == scope {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *fakeOAuthTokenRepo) Create(_ context.Context, params model.CreateOAuthTokenParams) (*model.OAuthToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t := &model.OAuthToken{
		ID:              fmt.Sprintf("oauth-%d", r.nextID),
		Provider:        params.Provider,
		OwnerScope:      params.OwnerScope,
		DeviceUUID:      params.DeviceUUID,
		UserUUID:        params.UserUUID,
		AccessTokenRef:  params.AccessTokenRef,
		RefreshTokenRef: params.RefreshTokenRef,
		ExpiresAt:       params.ExpiresAt,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	r.tokens[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *fakeOAuthTokenRepo) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[id]; ok {
		t.ExpiresAt = expiresAt
	}
	return nil
}

func (r *fakeOAuthTokenRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, id)
	return nil
}

type fakeOAuthNonceRepo struct {
	mu     sync.Mutex
	nonces map[string]*model.OAuthNonce
}

func newFakeOAuthNonceRepo() *fakeOAuthNonceRepo {
	return &fakeOAuthNonceRepo{nonces: make(map[string]*model.OAuthNonce)}
}

func (r *fakeOAuthNonceRepo) Create(_ context.Context, params model.CreateOAuthNonceParams) (*model.OAuthNonce, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := &model.OAuthNonce{
		Nonce:        params.Nonce,
		SerialNumber: params.SerialNumber,
		DeviceUUID:   params.DeviceUUID,
		UserUUID:     params.UserUUID,
		TokenType:    params.TokenType,
		ExpiresAt:    params.ExpiresAt,
		CreatedAt:    time.Now(),
	}
	r.nonces[n.Nonce] = n
	cp := *n
	return &cp, nil
}

func (r *fakeOAuthNonceRepo) FindByNonce(_ context.Context, nonce string) (*model.OAuthNonce, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nonces[nonce]; ok && n.ExpiresAt.After(time.Now()) {
		cp := *n
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeOAuthNonceRepo) Consume(_ context.Context, nonce string) (*model.OAuthNonce, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nonces[nonce]
	if !ok || !n.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	delete(r.nonces, nonce)
	cp := *n
	return &cp, nil
}

func (r *fakeOAuthNonceRepo) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for k, n := range r.nonces {
		if n.ExpiresAt.Before(time.Now()) {
			delete(r.nonces, k)
			count++
		}
	}
	return count, nil
}

// recordingBroadcaster captures every event published through the notifier.

type broadcastRecord struct {
	Channel string
	Type    string
	Payload any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, channel, eventType string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcastRecord{Channel: channel, Type: eventType, Payload: payload})
	return nil
}

func (b *recordingBroadcaster) byType(eventType string) []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastRecord
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeVault keeps secrets in a map.

type fakeVault struct {
	mu      sync.Mutex
	secrets map[string]string
	nextID  int
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[string]string)}
}

func (v *fakeVault) Read(_ context.Context, id string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.secrets[id]
	if !ok {
		return "", fmt.Errorf("vault secret %s not found", id)
	}
	return s, nil
}

func (v *fakeVault) Create(_ context.Context, secret, _ string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := fmt.Sprintf("ref-%d", v.nextID)
	v.secrets[id] = secret
	return id, nil
}

func (v *fakeVault) Update(_ context.Context, id, secret string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secrets[id] = secret
	return id, nil
}

// fakeLocker always grants unless told otherwise.

type fakeLocker struct {
	mu       sync.Mutex
	denied   bool
	acquired []string
}

func (l *fakeLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied {
		return false, nil
	}
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, _ string) error {
	return nil
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func strptr(s string) *string { return &s }

func timeptr(t time.Time) *time.Time { return &t }

func boolptr(b bool) *bool { return &b }
