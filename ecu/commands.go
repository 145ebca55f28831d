package ecu

import (
	"strings"

	"can-translator/signals"
)

const (
	CommandTurnSignal     = "turn_signal_status"
	SignalTurnSignalLeft  = "turn_signal_left"
	SignalTurnSignalRight = "turn_signal_right"
)

// TurnSignalCommand drives the left and right indicator signals from one
// "left", "right" or "off" request. The event, when given, is the on/off
// state for the named side.
func TurnSignalCommand() *signals.Command {
	return &signals.Command{Name: CommandTurnSignal, Handler: turnSignalHandler}
}

func turnSignalHandler(ctx *signals.CommandContext, name string, value signals.Value, event *signals.Value) bool {
	left := ctx.Dictionary.LookupWritableSignal(SignalTurnSignalLeft)
	right := ctx.Dictionary.LookupWritableSignal(SignalTurnSignalRight)
	if left == nil || right == nil {
		return false
	}

	on := true
	if event != nil {
		on = event.Float() != 0
	}

	var leftOn, rightOn bool
	switch strings.ToLower(value.String()) {
	case "left":
		leftOn = on
	case "right":
		rightOn = on
	case "off", "false", "0":
	default:
		return false
	}

	okLeft := ctx.Writer.Write(left, signals.Boolean(leftOn), false)
	okRight := ctx.Writer.Write(right, signals.Boolean(rightOn), false)
	return okLeft && okRight
}
