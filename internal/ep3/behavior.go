// Package ep3 loads the card-battle data files (card catalogue and map
// definitions) and implements the pieces of the card protocol the server
// itself needs: the per-room command masking and battle event recording.
// The battle rules engine is not part of this server.
package ep3

// BehaviorFlag bits toggle debug and test options for card battles.
type BehaviorFlag uint32

const (
	BehaviorSkipDeckVerify      BehaviorFlag = 0x00000001
	BehaviorIgnoreCardCounts    BehaviorFlag = 0x00000002
	BehaviorSkipD1D2Replace     BehaviorFlag = 0x00000004
	BehaviorDisableTimeLimits   BehaviorFlag = 0x00000008
	BehaviorEnableStatusMessages BehaviorFlag = 0x00000010
	BehaviorLoadCardText        BehaviorFlag = 0x00000020
	BehaviorEnableRecording     BehaviorFlag = 0x00000040
	BehaviorDisableMasking      BehaviorFlag = 0x00000080
	BehaviorDisableInterference BehaviorFlag = 0x00000100
)
