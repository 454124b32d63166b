package ws

import (
	"errors"

	"github.com/DoyleJ11/loto-server/internal/engine"
	"github.com/DoyleJ11/loto-server/internal/room"
	"github.com/DoyleJ11/loto-server/internal/types"
	"go.uber.org/zap"
)

var ErrUnknownEvent = errors.New("unknown event")

type okReply struct {
	Success bool `json:"success"`
}

// hostCommands need only the room code.
var hostCommands = map[string]engine.CommandType{
	types.EvtPauseGame:  engine.CmdPauseGame,
	types.EvtResumeGame: engine.CmdResumeGame,
	types.EvtResetGame:  engine.CmdResetGame,
	types.EvtCallNumber: engine.CmdCallNumber,
}

func (c *client) handle(msg types.ClientMessage) {
	switch msg.Event {
	case types.EvtCreateRoom:
		c.createRoom(msg)
	case types.EvtJoinRoom:
		c.joinRoom(msg)
	case types.EvtStartGame:
		var p types.StartGamePayload
		if c.decode(msg, &p) {
			c.command(msg, p.RoomCode, func(string) engine.Command {
				return engine.Command{Type: engine.CmdStartGame, ConnID: c.id, Continue: p.Continue}
			})
		}
	case types.EvtPauseGame, types.EvtResumeGame, types.EvtResetGame, types.EvtCallNumber:
		var p types.RoomPayload
		if c.decode(msg, &p) {
			typ := hostCommands[msg.Event]
			c.command(msg, p.RoomCode, func(string) engine.Command {
				return engine.Command{Type: typ, ConnID: c.id}
			})
		}
	case types.EvtSyncSelected:
		var p types.SyncSelectedPayload
		if c.decode(msg, &p) {
			c.command(msg, p.RoomCode, func(pid string) engine.Command {
				return engine.Command{Type: engine.CmdSyncSelected, ConnID: c.id, PlayerID: pid, Numbers: p.SelectedNumbers}
			})
		}
	case types.EvtCheckWin:
		var p types.CheckWinPayload
		if c.decode(msg, &p) {
			c.command(msg, p.RoomCode, func(pid string) engine.Command {
				return engine.Command{
					Type:     engine.CmdClaimWin,
					ConnID:   c.id,
					PlayerID: pid,
					RowIndex: p.RowIndex,
					Numbers:  p.RowNumbers,
					Selected: p.SelectedNumbers,
				}
			})
		}
	case types.EvtRerollTicket:
		var p types.RoomPayload
		if c.decode(msg, &p) {
			c.command(msg, p.RoomCode, func(pid string) engine.Command {
				return engine.Command{Type: engine.CmdRerollTicket, ConnID: c.id, PlayerID: pid}
			})
		}
	case types.EvtQuickChat:
		var p types.QuickChatPayload
		if c.decode(msg, &p) {
			c.command(msg, p.RoomCode, func(pid string) engine.Command {
				return engine.Command{Type: engine.CmdQuickChat, ConnID: c.id, PlayerID: pid, Emoji: p.Emoji, Text: p.Text}
			})
		}
	default:
		c.fail(msg, ErrUnknownEvent)
		if msg.Ack == nil {
			c.push(types.ServerMessage{Event: types.EvtError, Data: types.Failure(ErrUnknownEvent)})
		}
	}
}

func (c *client) decode(msg types.ClientMessage, v any) bool {
	if err := types.Decode(msg.Data, v); err != nil {
		c.fail(msg, err)
		return false
	}
	return true
}

// command resolves the room and sends it the command built from the player
// id this connection joined with.
func (c *client) command(msg types.ClientMessage, code string, build func(playerID string) engine.Command) {
	r, err := c.hub.Get(c.ctx, code)
	if err != nil {
		c.fail(msg, err)
		return
	}

	cmd := build(c.playerIn(r))
	reply, err := r.Do(c.ctx, cmd)
	if err != nil {
		c.fail(msg, err)
		return
	}
	if reply == nil {
		reply = okReply{Success: true}
	}
	c.ack(msg, reply)
}

func (c *client) createRoom(msg types.ClientMessage) {
	outbox := make(chan types.ServerMessage, outboxSize)
	r, err := c.hub.Create(c.ctx, c.id, outbox)
	if err != nil {
		c.log.Warn("create room failed", zap.Error(err))
		c.fail(msg, err)
		return
	}
	c.attach(r, "", outbox)
	c.log.Info("room created", zap.String("room", r.Code()))
	c.ack(msg, types.CreateRoomReply{Success: true, RoomCode: r.Code()})
}

func (c *client) joinRoom(msg types.ClientMessage) {
	var p types.JoinRoomPayload
	if !c.decode(msg, &p) {
		return
	}
	r, err := c.hub.Get(c.ctx, p.RoomCode)
	if err != nil {
		c.fail(msg, err)
		return
	}

	outbox := make(chan types.ServerMessage, outboxSize)
	res, err := r.JoinPlayer(c.ctx, room.Join{
		ConnID:   c.id,
		PlayerID: p.PersistentID,
		Name:     p.Name,
		Outbox:   outbox,
	})
	if err != nil {
		c.fail(msg, err)
		return
	}
	c.attach(r, res.PlayerID, outbox)

	// One room per identity: leave the previous room behind.
	if res.Moved {
		if prev, err := c.hub.Get(c.ctx, res.Previous.Code); err == nil {
			if err := prev.Send(c.ctx, room.Evict{PlayerID: res.PlayerID}); err != nil {
				c.log.Debug("evict not delivered", zap.String("room", prev.Code()), zap.Error(err))
			}
		}
	}

	c.log.Info("joined room", zap.String("room", r.Code()), zap.String("player", res.PlayerID))
	c.ack(msg, res.Data)
}
