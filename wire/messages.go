// Copyright 2026 The SyncSketch Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/syncsketch/syncsketch/board"

// Topic names a message kind on the transport channel. Every payload
// type below corresponds to exactly one topic; the relay routes on the
// envelope alone and never decodes payloads.
type Topic string

const (
	// TopicJoinRoom asks the relay to admit the sender to a room.
	// Payload: Join.
	TopicJoinRoom Topic = "join-room"
	// TopicRoomJoined is the relay's admission acknowledgement,
	// unicast to the joiner. Payload: RoomJoined.
	TopicRoomJoined Topic = "room-joined"
	// TopicOffer carries a targeted SDP offer. Payload: Offer.
	TopicOffer Topic = "offer"
	// TopicAnswer carries a targeted SDP answer. Payload: Answer.
	TopicAnswer Topic = "answer"
	// TopicICECandidate carries a targeted trickle ICE candidate.
	// Payload: ICECandidate.
	TopicICECandidate Topic = "ice-candidate"
	// TopicNewMessage broadcasts a chat line. Payload: ChatMessage.
	TopicNewMessage Topic = "new_message"
	// TopicBoardOp broadcasts one drawing operation. Payload:
	// board.Operation.
	TopicBoardOp Topic = "board_op"
	// TopicBoardUndo broadcasts a retraction of a past operation.
	// Payload: BoardUndo.
	TopicBoardUndo Topic = "board_undo"
	// TopicCursorMoved broadcasts a live cursor position. Payload:
	// CursorMoved.
	TopicCursorMoved Topic = "cursor_moved"
	// TopicMeetingStateSync unicasts meeting metadata, shared files,
	// and the latest summary to a late joiner. Payload: MeetingState.
	TopicMeetingStateSync Topic = "meeting_state_sync"
	// TopicPresencePing broadcasts a presence announcement. Payload:
	// PresencePing.
	TopicPresencePing Topic = "presence_ping"
	// TopicPresencePong answers a ping, unicast to the asker.
	// Payload: PresencePong.
	TopicPresencePong Topic = "presence_pong"
	// TopicNewFile broadcasts a shared file record. Payload:
	// FileRecord.
	TopicNewFile Topic = "new_file"
	// TopicNewSummary broadcasts an AI-generated meeting summary.
	// Payload: NewSummary.
	TopicNewSummary Topic = "new_summary"
	// TopicAdminAction unicasts a moderation order to its target.
	// Payload: AdminAction.
	TopicAdminAction Topic = "admin-action"
	// TopicEndMeeting asks the relay to end the sender's room.
	// Payload: EndMeeting.
	TopicEndMeeting Topic = "end_meeting"
	// TopicMeetingEnded tells room members the meeting has ended.
	// Payload: none.
	TopicMeetingEnded Topic = "meeting_ended_globally"
	// TopicMeetingEndedError rejects a join of an ended room, unicast
	// to the joiner. Payload: none.
	TopicMeetingEndedError Topic = "meeting-ended-error"
	// TopicUserConnected tells room members a participant was
	// admitted. Payload: UserConnected.
	TopicUserConnected Topic = "user-connected"
	// TopicUserDisconnected tells room members a participant's
	// connection dropped. Payload: UserDisconnected.
	TopicUserDisconnected Topic = "user-disconnected"
)

// Role is a participant's role in a meeting. The core treats it as
// opaque identity input; moderation authority is client-side
// convention only.
type Role string

const (
	RoleHost        Role = "HOST"
	RoleParticipant Role = "PARTICIPANT"
)

// Identity is the verified identity triple supplied by the
// authentication collaborator before a session starts.
type Identity struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name"`
	Role        Role   `cbor:"role"`
}

// Join asks for admission to a room.
type Join struct {
	RoomID   string   `cbor:"room_id"`
	Identity Identity `cbor:"identity"`
}

// RoomJoined acknowledges admission.
type RoomJoined struct {
	RoomID string `cbor:"room_id"`
}

// Offer is a session description initiating negotiation with one peer.
type Offer struct {
	SDP string `cbor:"sdp"`
}

// Answer completes a negotiation round started by an Offer.
type Answer struct {
	SDP string `cbor:"sdp"`
}

// ICECandidate is one trickled connectivity candidate.
type ICECandidate struct {
	Candidate     string `cbor:"candidate"`
	SDPMid        string `cbor:"sdp_mid"`
	SDPMLineIndex uint16 `cbor:"sdp_mline_index"`
}

// ChatMessage is one chat line.
type ChatMessage struct {
	ID        string `cbor:"id"`
	UserID    string `cbor:"user_id"`
	UserName  string `cbor:"user_name"`
	Text      string `cbor:"text"`
	Timestamp int64  `cbor:"timestamp"` // milliseconds since epoch
}

// BoardUndo retracts one past operation from every replica's log.
// Distinct from a DELETE operation: it rewrites history.
type BoardUndo struct {
	UserID string `cbor:"user_id"`
	OpID   string `cbor:"op_id"`
}

// CursorMoved is a live cursor position update.
type CursorMoved struct {
	UserID   string  `cbor:"user_id"`
	UserName string  `cbor:"user_name"`
	X        float64 `cbor:"x"`
	Y        float64 `cbor:"y"`
}

// Meeting is the locally persisted meeting metadata record.
type Meeting struct {
	ID           string `cbor:"id"`
	Title        string `cbor:"title"`
	HostID       string `cbor:"host_id"`
	CreatedAt    int64  `cbor:"created_at"`
	LastModified int64  `cbor:"last_modified"`
	Ended        bool   `cbor:"ended,omitempty"`
}

// FileRecord describes a file shared into the meeting. The content
// travels inline as a data URL; the core does not interpret it.
type FileRecord struct {
	ID         string `cbor:"id"`
	Name       string `cbor:"name"`
	MIMEType   string `cbor:"mime_type"`
	DataURL    string `cbor:"data_url"`
	Size       int64  `cbor:"size"`
	UploadedBy string `cbor:"uploaded_by"`
	Timestamp  int64  `cbor:"timestamp"`
}

// MeetingState is the host's view of shared session state, unicast to
// late joiners so their persisted history converges with the host's.
type MeetingState struct {
	Meeting Meeting      `cbor:"meeting"`
	Files   []FileRecord `cbor:"files,omitempty"`
	Summary string       `cbor:"summary,omitempty"`
}

// PresencePing announces the sender to the room.
type PresencePing struct {
	Identity Identity `cbor:"identity"`
}

// PresencePong answers a ping from a previously unknown participant.
type PresencePong struct {
	Identity Identity `cbor:"identity"`
}

// NewSummary carries an AI-generated meeting summary.
type NewSummary struct {
	Text string `cbor:"text"`
}

// AdminKind enumerates moderation orders.
type AdminKind string

const (
	AdminMute AdminKind = "mute"
	AdminKick AdminKind = "kick"
)

// AdminAction is a host moderation order; the envelope target names
// the participant who must enforce it locally.
type AdminAction struct {
	Kind AdminKind `cbor:"kind"`
}

// EndMeeting asks the relay to end a room for everyone.
type EndMeeting struct {
	RoomID string `cbor:"room_id"`
}

// UserConnected notifies room members of an admitted participant.
type UserConnected struct {
	Identity Identity `cbor:"identity"`
}

// UserDisconnected notifies room members of a dropped participant.
type UserDisconnected struct {
	UserID string `cbor:"user_id"`
}

// Operation re-exports the board operation type as the board_op
// payload, so subscribers decode through one package.
type Operation = board.Operation
