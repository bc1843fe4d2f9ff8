// Package session は現在ログイン中のユーザーの識別情報と認証トークンを保持する。
//
// Sessionはプロセス内で1つだけ生成し、各キャッシュのコンストラクタへ明示的に注入する。
// キャッシュ側はCurrentUserID/Currentで読み取るのみで、書き込みはこのパッケージの
// Managerとapiclientの401処理（Invalidate）に限られる。
package session

import (
	"sync"
)

// Session は認証トークンと現在のユーザー識別情報を保持する。
// 全メソッドは複数ゴルーチンから安全に呼び出せる。
type Session struct {
	mu       sync.RWMutex
	token    string
	identity *Identity
}

// New は指定したトークンを持つSessionを生成する。tokenは空でもよい。
func New(token string) *Session {
	return &Session{token: token}
}

// Token はAuthorizationヘッダーに付与するベアラートークンを返す。
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// SetToken はベアラートークンを差し替える。
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// CurrentUserID は現在のユーザーの正規化済みIDを返す。未ログイン時は空文字列。
func (s *Session) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return ""
	}
	return s.identity.ID
}

// Current は現在のユーザー識別情報のコピーを返す。
func (s *Session) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// SetUser はAPIから受け取ったユーザーのJSON表現を正規化して保持する。
// rawがオブジェクトとして解釈できない場合は識別情報をクリアする。
func (s *Session) SetUser(raw []byte) (Identity, bool) {
	ident, ok := NormalizeUser(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok {
		s.identity = nil
		return Identity{}, false
	}
	s.identity = &ident
	return ident, true
}

// ClearUser はユーザー識別情報のみをクリアする。トークンは保持する。
func (s *Session) ClearUser() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
}

// Invalidate はトークンとユーザー識別情報の両方を破棄する。
// リモートAPIが401を返した際にapiclientから呼び出される。
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.identity = nil
}
