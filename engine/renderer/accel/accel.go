// Package accel owns the two-level ray-tracing acceleration structure of a scene: one
// bottom-level structure per unique mesh and one top-level structure over all instances,
// refitted in place every frame.
package accel

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/model"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/upload"
)

var (
	// ErrTopologyChanged is returned when an update does not match the instance count the
	// top-level structure was built with.
	ErrTopologyChanged = errors.New("accel: instance topology changed")

	// ErrNotBuilt is returned by updates before Initialize succeeded.
	ErrNotBuilt = errors.New("accel: acceleration structure not built")
)

// State is the lifecycle state of a Manager.
type State int

const (
	// StateUnbuilt is the state before Initialize and after Release.
	StateUnbuilt State = iota

	// StateBuilt means both levels exist and the instance buffer matches the GPU structure.
	StateBuilt

	// StateRefitting is held while UpdateTransforms records an update.
	StateRefitting
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "Unbuilt"
	case StateBuilt:
		return "Built"
	case StateRefitting:
		return "Refitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Instance is one entity placed in the top-level structure.
type Instance struct {
	Mesh          model.Mesh
	Transform     common.Mat4
	HitGroupIndex uint32
	// Mask is the instance inclusion mask; zero means visible to every ray.
	Mask  uint8
	Flags gpu.InstanceFlags
}

// Manager builds and refits the scene acceleration structures.
type Manager interface {
	// Initialize builds one bottom-level structure per unique mesh key, writes the instance
	// records and builds the top-level structure with update support. All builds are
	// submitted together and waited on. Meshes that are not uploaded yet are uploaded first.
	// A previous build is released before the new one starts.
	//
	// Parameters:
	//   - instances: the scene instances, in hit-group order
	//
	// Returns:
	//   - error: creation, build or wait error; nothing created by the call is left alive
	Initialize(instances []Instance) error

	// UpdateTransforms writes the instance records whose transform changed and records an
	// in-place update of the top-level structure followed by a UAV barrier. The transforms
	// are applied as view × transform; pass the identity to keep world space.
	//
	// Parameters:
	//   - cl: the command list of the frame
	//   - view: the matrix applied on top of every instance transform
	//   - transforms: one transform per instance, in Initialize order
	//
	// Returns:
	//   - int: the number of instance records rewritten
	//   - error: ErrNotBuilt, ErrTopologyChanged or a buffer write error
	UpdateTransforms(cl gpu.CommandList, view common.Mat4, transforms []common.Mat4) (int, error)

	// TLAS returns the top-level structure, or nil before Initialize.
	TLAS() gpu.AccelerationStructure

	// BLAS returns the bottom-level structure built for a mesh key.
	BLAS(key string) (gpu.AccelerationStructure, bool)

	// BLASCount returns the number of bottom-level structures.
	BLASCount() int

	// InstanceCount returns the number of instances in the top-level structure.
	InstanceCount() int

	// InstanceBuffer returns the upload buffer holding the instance records.
	InstanceBuffer() gpu.Buffer

	// State returns the lifecycle state.
	State() State

	// NeedsRebuild reports whether the next update is a full rebuild because a refit failed.
	NeedsRebuild() bool

	// Release frees every structure and buffer and returns to StateUnbuilt.
	Release()
}

type bottomLevel struct {
	as      gpu.AccelerationStructure
	scratch gpu.Buffer
	inputs  gpu.BuildInputs
}

type manager struct {
	device gpu.Device
	ctrl   upload.Controller
	label  string
	flags  gpu.BuildFlags

	state   State
	rebuild bool

	blas      map[string]*bottomLevel
	blasOrder []string
	instances []Instance
	records   [][]byte

	instanceBuffer gpu.Buffer
	tlas           gpu.AccelerationStructure
	tlasScratch    gpu.Buffer
	tlasInputs     gpu.BuildInputs
}

var _ Manager = &manager{}

// NewManager creates an unbuilt Manager submitting through ctrl.
//
// Parameters:
//   - ctrl: the upload controller used for the initial build
//   - options: variadic list of ManagerBuilderOption functions
//
// Returns:
//   - Manager: the manager
func NewManager(ctrl upload.Controller, options ...ManagerBuilderOption) Manager {
	if ctrl == nil {
		panic("accel: nil upload controller")
	}
	m := &manager{
		device: ctrl.Device(),
		ctrl:   ctrl,
		label:  "scene",
		flags:  gpu.BuildPreferFastTrace,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *manager) Initialize(instances []Instance) error {
	m.Release()

	if len(instances) == 0 {
		return fmt.Errorf("accel: initialize %q: no instances", m.label)
	}

	var created []func()
	fail := func(err error) error {
		for i := len(created) - 1; i >= 0; i-- {
			created[i]()
		}
		m.reset()
		return err
	}

	m.blas = make(map[string]*bottomLevel)
	for _, inst := range instances {
		key := inst.Mesh.Key()
		if _, ok := m.blas[key]; ok {
			continue
		}
		b, err := m.createBottomLevel(inst.Mesh)
		if err != nil {
			return fail(err)
		}
		created = append(created, b.as.Release, b.scratch.Release)
		m.blas[key] = b
		m.blasOrder = append(m.blasOrder, key)
	}

	m.instances = append([]Instance(nil), instances...)
	m.records = make([][]byte, len(instances))
	data := make([]byte, 0, len(instances)*gpu.InstanceDescSize)
	for i, inst := range m.instances {
		m.records[i] = m.record(i, common.Identity(), inst.Transform)
		data = append(data, m.records[i]...)
	}

	buf, err := m.device.CreateBuffer(gpu.BufferDescriptor{
		Label: m.label + " instances",
		Size:  uint64(len(data)),
		Usage: gpu.BufferUsageUpload | gpu.BufferUsageAccelerationStructureInput,
	})
	if err != nil {
		return fail(fmt.Errorf("accel: create instance buffer: %w", err))
	}
	created = append(created, buf.Release)
	if err := buf.Write(0, data); err != nil {
		return fail(fmt.Errorf("accel: write instance buffer: %w", err))
	}
	m.instanceBuffer = buf

	m.tlasInputs = gpu.BuildInputs{
		Level:          gpu.LevelTop,
		Flags:          m.flags | gpu.BuildAllowUpdate,
		InstanceBuffer: buf,
		InstanceCount:  uint32(len(instances)),
	}
	info := m.device.AccelerationStructurePrebuildInfo(m.tlasInputs)
	tlas, err := m.device.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
		Label: m.label + " tlas",
		Level: gpu.LevelTop,
		Size:  info.ResultSize,
	})
	if err != nil {
		return fail(fmt.Errorf("accel: create top level: %w", err))
	}
	created = append(created, tlas.Release)
	m.tlas = tlas

	scratch, err := m.device.CreateBuffer(gpu.BufferDescriptor{
		Label: m.label + " tlas scratch",
		Size:  max(info.ScratchSize, info.UpdateScratchSize),
		Usage: gpu.BufferUsageScratch | gpu.BufferUsageUnorderedAccess,
	})
	if err != nil {
		return fail(fmt.Errorf("accel: create top-level scratch: %w", err))
	}
	created = append(created, scratch.Release)
	m.tlasScratch = scratch

	err = m.ctrl.Record(func(cl gpu.CommandList) error {
		for _, key := range m.blasOrder {
			b := m.blas[key]
			cl.BuildAccelerationStructure(gpu.BuildDescriptor{Inputs: b.inputs, Destination: b.as, Scratch: b.scratch})
			cl.ResourceBarrier(gpu.UAVBarrier(b.as))
		}
		cl.BuildAccelerationStructure(gpu.BuildDescriptor{Inputs: m.tlasInputs, Destination: m.tlas, Scratch: m.tlasScratch})
		cl.ResourceBarrier(gpu.UAVBarrier(m.tlas))
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("accel: build: %w", err))
	}

	// bottom-level scratch is only needed by the initial build
	for _, b := range m.blas {
		b.scratch.Release()
		b.scratch = nil
	}

	m.state = StateBuilt
	logger.Logger().Info("acceleration structures built", "label", m.label, "blas", len(m.blas), "instances", len(m.instances))
	return nil
}

func (m *manager) createBottomLevel(mesh model.Mesh) (*bottomLevel, error) {
	g, err := m.ctrl.UploadMesh(mesh)
	if err != nil {
		return nil, fmt.Errorf("accel: upload mesh %q: %w", mesh.Key(), err)
	}
	inputs := gpu.BuildInputs{
		Level: gpu.LevelBottom,
		Flags: m.flags,
		Geometries: []gpu.TriangleGeometry{{
			VertexBuffer: g.VertexBuffer,
			VertexCount:  uint32(len(mesh.Vertices())),
			VertexStride: model.VertexLayout.Stride,
			IndexBuffer:  g.IndexBuffer,
			IndexCount:   uint32(len(mesh.Indices())),
			Opaque:       true,
		}},
	}
	info := m.device.AccelerationStructurePrebuildInfo(inputs)

	as, err := m.device.CreateAccelerationStructure(gpu.AccelerationStructureDescriptor{
		Label: mesh.Key() + " blas",
		Level: gpu.LevelBottom,
		Size:  info.ResultSize,
	})
	if err != nil {
		return nil, fmt.Errorf("accel: create bottom level %q: %w", mesh.Key(), err)
	}
	scratch, err := m.device.CreateBuffer(gpu.BufferDescriptor{
		Label: mesh.Key() + " blas scratch",
		Size:  info.ScratchSize,
		Usage: gpu.BufferUsageScratch | gpu.BufferUsageUnorderedAccess,
	})
	if err != nil {
		as.Release()
		return nil, fmt.Errorf("accel: create bottom-level scratch %q: %w", mesh.Key(), err)
	}
	logger.Logger().Debug("bottom level sized", "mesh", mesh.Key(), "result", info.ResultSize, "scratch", info.ScratchSize)
	return &bottomLevel{as: as, scratch: scratch, inputs: inputs}, nil
}

func (m *manager) record(i int, view, transform common.Mat4) []byte {
	inst := m.instances[i]
	mask := inst.Mask
	if mask == 0 {
		mask = 0xFF
	}
	return gpu.InstanceDesc{
		Transform:             view.Mul(transform).RowMajor3x4(),
		InstanceID:            uint32(i),
		Mask:                  mask,
		HitGroupIndex:         inst.HitGroupIndex,
		Flags:                 inst.Flags,
		AccelerationStructure: m.blas[inst.Mesh.Key()].as.Address(),
	}.Marshal()
}

func (m *manager) UpdateTransforms(cl gpu.CommandList, view common.Mat4, transforms []common.Mat4) (int, error) {
	if m.state == StateUnbuilt {
		return 0, ErrNotBuilt
	}
	if len(transforms) != len(m.instances) {
		return 0, fmt.Errorf("%w: %d transforms for %d instances", ErrTopologyChanged, len(transforms), len(m.instances))
	}

	m.state = StateRefitting
	defer func() { m.state = StateBuilt }()

	changed := 0
	for i, t := range transforms {
		rec := m.record(i, view, t)
		if bytes.Equal(rec, m.records[i]) {
			continue
		}
		if err := m.instanceBuffer.Write(uint64(i*gpu.InstanceDescSize), rec); err != nil {
			m.rebuild = true
			logger.Logger().Warn("instance write failed, next update rebuilds", "instance", i, "error", err)
			return changed, fmt.Errorf("accel: write instance %d: %w", i, err)
		}
		m.records[i] = rec
		m.instances[i].Transform = t
		changed++
	}
	if changed == 0 && !m.rebuild {
		return 0, nil
	}

	desc := gpu.BuildDescriptor{Inputs: m.tlasInputs, Destination: m.tlas, Scratch: m.tlasScratch}
	if m.rebuild {
		logger.Logger().Warn("rebuilding top level after failed refit", "label", m.label)
		m.rebuild = false
	} else {
		desc.Inputs.Flags |= gpu.BuildPerformUpdate
		desc.Source = m.tlas
	}
	cl.BuildAccelerationStructure(desc)
	cl.ResourceBarrier(gpu.UAVBarrier(m.tlas))
	return changed, nil
}

func (m *manager) TLAS() gpu.AccelerationStructure {
	return m.tlas
}

func (m *manager) BLAS(key string) (gpu.AccelerationStructure, bool) {
	b, ok := m.blas[key]
	if !ok {
		return nil, false
	}
	return b.as, true
}

func (m *manager) BLASCount() int {
	return len(m.blas)
}

func (m *manager) InstanceCount() int {
	return len(m.instances)
}

func (m *manager) InstanceBuffer() gpu.Buffer {
	return m.instanceBuffer
}

func (m *manager) State() State {
	return m.state
}

func (m *manager) NeedsRebuild() bool {
	return m.rebuild
}

func (m *manager) Release() {
	if m.state == StateUnbuilt {
		return
	}
	for _, b := range m.blas {
		b.as.Release()
		if b.scratch != nil {
			b.scratch.Release()
		}
	}
	m.tlas.Release()
	m.tlasScratch.Release()
	m.instanceBuffer.Release()
	m.reset()
}

func (m *manager) reset() {
	m.state = StateUnbuilt
	m.rebuild = false
	m.blas = nil
	m.blasOrder = nil
	m.instances = nil
	m.records = nil
	m.instanceBuffer = nil
	m.tlas = nil
	m.tlasScratch = nil
	m.tlasInputs = gpu.BuildInputs{}
}
