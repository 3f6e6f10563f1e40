package avatar3d

// Channel names a facial morph target on an avatar mesh. The names follow the
// ARKit blendshape set plus the Oculus viseme set that Ready Player Me style
// heads export.
type Channel string

const (
	BrowDownLeft        Channel = "browDownLeft"
	BrowDownRight       Channel = "browDownRight"
	BrowInnerUp         Channel = "browInnerUp"
	BrowOuterUpLeft     Channel = "browOuterUpLeft"
	BrowOuterUpRight    Channel = "browOuterUpRight"
	CheekPuff           Channel = "cheekPuff"
	CheekSquintLeft     Channel = "cheekSquintLeft"
	CheekSquintRight    Channel = "cheekSquintRight"
	EyeBlinkLeft        Channel = "eyeBlinkLeft"
	EyeBlinkRight       Channel = "eyeBlinkRight"
	EyeLookDownLeft     Channel = "eyeLookDownLeft"
	EyeLookDownRight    Channel = "eyeLookDownRight"
	EyeLookInLeft       Channel = "eyeLookInLeft"
	EyeLookInRight      Channel = "eyeLookInRight"
	EyeLookOutLeft      Channel = "eyeLookOutLeft"
	EyeLookOutRight     Channel = "eyeLookOutRight"
	EyeLookUpLeft       Channel = "eyeLookUpLeft"
	EyeLookUpRight      Channel = "eyeLookUpRight"
	EyeSquintLeft       Channel = "eyeSquintLeft"
	EyeSquintRight      Channel = "eyeSquintRight"
	EyeWideLeft         Channel = "eyeWideLeft"
	EyeWideRight        Channel = "eyeWideRight"
	JawForward          Channel = "jawForward"
	JawLeft             Channel = "jawLeft"
	JawOpen             Channel = "jawOpen"
	JawRight            Channel = "jawRight"
	MouthClose          Channel = "mouthClose"
	MouthDimpleLeft     Channel = "mouthDimpleLeft"
	MouthDimpleRight    Channel = "mouthDimpleRight"
	MouthFrownLeft      Channel = "mouthFrownLeft"
	MouthFrownRight     Channel = "mouthFrownRight"
	MouthFunnel         Channel = "mouthFunnel"
	MouthLeft           Channel = "mouthLeft"
	MouthLowerDownLeft  Channel = "mouthLowerDownLeft"
	MouthLowerDownRight Channel = "mouthLowerDownRight"
	MouthPressLeft      Channel = "mouthPressLeft"
	MouthPressRight     Channel = "mouthPressRight"
	MouthPucker         Channel = "mouthPucker"
	MouthRight          Channel = "mouthRight"
	MouthRollLower      Channel = "mouthRollLower"
	MouthRollUpper      Channel = "mouthRollUpper"
	MouthShrugLower     Channel = "mouthShrugLower"
	MouthShrugUpper     Channel = "mouthShrugUpper"
	MouthSmileLeft      Channel = "mouthSmileLeft"
	MouthSmileRight     Channel = "mouthSmileRight"
	MouthStretchLeft    Channel = "mouthStretchLeft"
	MouthStretchRight   Channel = "mouthStretchRight"
	MouthUpperUpLeft    Channel = "mouthUpperUpLeft"
	MouthUpperUpRight   Channel = "mouthUpperUpRight"
	NoseSneerLeft       Channel = "noseSneerLeft"
	NoseSneerRight      Channel = "noseSneerRight"
	TongueOut           Channel = "tongueOut"
)

// ARKitChannels lists the 52 ARKit blendshapes in their canonical order.
var ARKitChannels = []Channel{
	BrowDownLeft, BrowDownRight, BrowInnerUp, BrowOuterUpLeft, BrowOuterUpRight,
	CheekPuff, CheekSquintLeft, CheekSquintRight,
	EyeBlinkLeft, EyeBlinkRight, EyeLookDownLeft, EyeLookDownRight,
	EyeLookInLeft, EyeLookInRight, EyeLookOutLeft, EyeLookOutRight,
	EyeLookUpLeft, EyeLookUpRight, EyeSquintLeft, EyeSquintRight,
	EyeWideLeft, EyeWideRight,
	JawForward, JawLeft, JawOpen, JawRight,
	MouthClose, MouthDimpleLeft, MouthDimpleRight, MouthFrownLeft, MouthFrownRight,
	MouthFunnel, MouthLeft, MouthLowerDownLeft, MouthLowerDownRight,
	MouthPressLeft, MouthPressRight, MouthPucker, MouthRight,
	MouthRollLower, MouthRollUpper, MouthShrugLower, MouthShrugUpper,
	MouthSmileLeft, MouthSmileRight, MouthStretchLeft, MouthStretchRight,
	MouthUpperUpLeft, MouthUpperUpRight, NoseSneerLeft, NoseSneerRight,
	TongueOut,
}

// DefaultChannels returns the channel universe used when no avatar asset has
// been loaded: every viseme channel followed by the ARKit set.
func DefaultChannels() []Channel {
	channels := make([]Channel, 0, len(AllVisemes)+len(ARKitChannels))
	for _, v := range AllVisemes {
		channels = append(channels, v.Channel())
	}
	return append(channels, ARKitChannels...)
}

// ChannelNames converts channels to the plain strings a mesh dictionary uses.
func ChannelNames(channels []Channel) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}
	return names
}
