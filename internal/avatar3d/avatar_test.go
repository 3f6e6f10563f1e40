package avatar3d

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meshWithTargets(name string, targets ...string) *gltf.Mesh {
	raw := make([]interface{}, len(targets))
	for i, t := range targets {
		raw[i] = t
	}
	return &gltf.Mesh{
		Name:   name,
		Extras: map[string]interface{}{"targetNames": raw},
	}
}

func TestRigFromDocument(t *testing.T) {
	doc := &gltf.Document{
		Meshes: []*gltf.Mesh{
			{Name: "Wolf3D_Body"},
			meshWithTargets("Wolf3D_Head", "mouthSmileLeft", "viseme_aa"),
			meshWithTargets("Wolf3D_Teeth", "viseme_aa"),
			meshWithTargets("EyeLeft", "eyeBlinkLeft"),
		},
	}

	rig, err := rigFromDocument(doc, "Wolf3D_Head", []string{"Wolf3D_Teeth"})
	require.NoError(t, err)
	assert.Equal(t, "Wolf3D_Head", rig.Head.Name)
	assert.Equal(t, []string{"mouthSmileLeft", "viseme_aa"}, rig.Head.Channels)
	require.Len(t, rig.Secondary, 1)
	assert.Equal(t, "Wolf3D_Teeth", rig.Secondary[0].Name)

	rig, err = rigFromDocument(doc, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "Wolf3D_Head", rig.Head.Name, "first mesh with targets")

	_, err = rigFromDocument(doc, "Nope", nil)
	assert.True(t, errors.Is(err, ErrMeshNotFound))

	_, err = rigFromDocument(&gltf.Document{}, "", nil)
	assert.True(t, errors.Is(err, ErrMeshNotFound))
}

func TestDefaultRig(t *testing.T) {
	rig := DefaultRig()
	assert.Len(t, rig.Head.Channels, len(AllVisemes)+len(ARKitChannels))
	assert.Contains(t, rig.Head.Channels, "viseme_aa")
	assert.Contains(t, rig.Head.Channels, "mouthFrownLeft")
	require.Len(t, rig.Secondary, 1)
	assert.Len(t, rig.Secondary[0].Channels, len(AllVisemes))
}

func TestClipDuration(t *testing.T) {
	doc := &gltf.Document{
		Accessors: []*gltf.Accessor{
			{Max: []float64{1.25}},
			{Max: []float64{2.5}},
		},
		Animations: []*gltf.Animation{{
			Samplers: []*gltf.AnimationSampler{{Input: 0}, {Input: 1}},
		}},
	}
	d, err := clipDuration(doc)
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, d)

	_, err = clipDuration(&gltf.Document{})
	assert.Error(t, err)
}

func TestLoadClipLibraryKeepsDefaultsWithoutFiles(t *testing.T) {
	lib, err := LoadClipLibrary(map[ClipID]string{ClipIdle: ""})
	require.NoError(t, err)
	assert.Equal(t, DefaultClipLibrary(), lib)

	_, err = LoadClipLibrary(map[ClipID]string{ClipIdle: "/does/not/exist.glb"})
	assert.Error(t, err)
}

func TestAvatarModelMatrix(t *testing.T) {
	a := NewAvatar("luna")
	a.SetPosition(mgl32.Vec3{1, -1.5, 0})
	a.SetScale(2)

	m := a.ModelMatrix()
	p := m.Mul4x1(mgl32.Vec4{0, 1, 0, 1})
	assert.InDelta(t, 1, p.X(), 1e-6)
	assert.InDelta(t, 0.5, p.Y(), 1e-6)

	pose := a.Pose()
	assert.Equal(t, "luna", pose.ID)
	assert.Equal(t, float32(2), pose.Transform[0])
}
