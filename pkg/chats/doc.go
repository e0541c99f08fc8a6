// Package chats is the vendor-neutral conversation model shared by the
// provider adapters and the character chat.
//
//   - [github.com/germanamz/taskbot/pkg/chats/role] names the speakers.
//   - [github.com/germanamz/taskbot/pkg/chats/message] pairs a role with text.
//   - [github.com/germanamz/taskbot/pkg/chats/chat] keeps the running history.
package chats
