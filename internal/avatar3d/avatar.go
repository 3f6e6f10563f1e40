package avatar3d

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/qmuntal/gltf"
)

// Mesh names exported by Ready Player Me style heads.
const (
	DefaultHeadMesh  = "Wolf3D_Head"
	DefaultTeethMesh = "Wolf3D_Teeth"
)

var ErrMeshNotFound = errors.New("mesh not found")

// Rig is the set of morph meshes the engine drives. The head gets the full
// target map; secondary meshes such as teeth only follow the viseme.
type Rig struct {
	Head      MorphMesh
	Secondary []MorphMesh
}

// DefaultRig is used when no avatar asset is available.
func DefaultRig() *Rig {
	visemes := make([]Channel, 0, len(AllVisemes))
	for _, v := range AllVisemes {
		visemes = append(visemes, v.Channel())
	}
	return &Rig{
		Head: MorphMesh{Name: DefaultHeadMesh, Channels: ChannelNames(DefaultChannels())},
		Secondary: []MorphMesh{
			{Name: DefaultTeethMesh, Channels: ChannelNames(visemes)},
		},
	}
}

// LoadRig reads morph dictionaries from a glTF binary. An empty head name
// picks the first mesh that has morph targets.
func LoadRig(path, head string, secondary []string) (*Rig, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}
	return rigFromDocument(doc, head, secondary)
}

func rigFromDocument(doc *gltf.Document, head string, secondary []string) (*Rig, error) {
	meshes := MorphMeshes(doc)
	if len(meshes) == 0 {
		return nil, fmt.Errorf("no morph targets in file: %w", ErrMeshNotFound)
	}

	rig := &Rig{}
	found := false
	for _, m := range meshes {
		if !found && (m.Name == head || head == "") {
			rig.Head = m
			found = true
			continue
		}
		for _, name := range secondary {
			if m.Name == name {
				rig.Secondary = append(rig.Secondary, m)
				break
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("head %q: %w", head, ErrMeshNotFound)
	}
	return rig, nil
}

// MorphMeshes lists every mesh with named morph targets. Names come from the
// mesh's extras.targetNames, the convention glTF exporters use.
func MorphMeshes(doc *gltf.Document) []MorphMesh {
	var out []MorphMesh
	for _, mesh := range doc.Meshes {
		names := targetNames(mesh)
		if len(names) == 0 {
			continue
		}
		out = append(out, MorphMesh{Name: mesh.Name, Channels: names})
	}
	return out
}

func targetNames(mesh *gltf.Mesh) []string {
	extras, ok := mesh.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := extras["targetNames"].([]interface{})
	if !ok {
		return nil
	}
	names := make([]string, 0, len(raw))
	for _, n := range raw {
		if s, ok := n.(string); ok {
			names = append(names, s)
		}
	}
	return names
}

type AvatarID string

// Avatar is the placement of a character model in the scene.
type Avatar struct {
	ID AvatarID

	position mgl32.Vec3
	rotation mgl32.Vec3
	scale    float32
}

func NewAvatar(id AvatarID) *Avatar {
	return &Avatar{
		ID:       id,
		position: mgl32.Vec3{0, 0, 0},
		rotation: mgl32.Vec3{0, 0, 0},
		scale:    1.0,
	}
}

func (a *Avatar) SetPosition(pos mgl32.Vec3) {
	a.position = pos
}

func (a *Avatar) SetRotation(rot mgl32.Vec3) {
	a.rotation = rot
}

func (a *Avatar) SetScale(s float32) {
	a.scale = s
}

func (a *Avatar) Position() mgl32.Vec3 { return a.position }

// ModelMatrix composes translate, XYZ rotation and uniform scale.
func (a *Avatar) ModelMatrix() mgl32.Mat4 {
	model := mgl32.Translate3D(a.position[0], a.position[1], a.position[2])
	model = model.Mul4(mgl32.HomogRotate3DX(a.rotation[0]))
	model = model.Mul4(mgl32.HomogRotate3DY(a.rotation[1]))
	model = model.Mul4(mgl32.HomogRotate3DZ(a.rotation[2]))
	return model.Mul4(mgl32.Scale3D(a.scale, a.scale, a.scale))
}

// Pose is the placement sent with each frame.
type Pose struct {
	ID        string      `json:"id" msg:"id"`
	Transform [16]float32 `json:"transform" msg:"transform"`
}

func (a *Avatar) Pose() Pose {
	return Pose{ID: string(a.ID), Transform: [16]float32(a.ModelMatrix())}
}
