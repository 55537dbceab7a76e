package wgpu_backend

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/logger"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/bvh"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// Packed scene sizes, in bytes. The scene buffer is an array of vec4 words: a header, the
// top-level nodes, one instance slot per instance and the nodes and triangles of every
// referenced bottom-level structure.
const (
	vec4Size         = 16
	sceneHeaderSize  = vec4Size
	instanceSlotSize = 4 * vec4Size
	triangleSize     = 3 * vec4Size

	// skippedInstance marks an instance slot the traversal ignores.
	skippedInstance = 0xFFFFFFFF
)

// bottomLevel is the immutable result of one bottom-level build.
type bottomLevel struct {
	tree      *bvh.Tree
	bounds    bvh.AABB
	nodes     []byte
	triangles []byte
}

type accelerationStructure struct {
	dev     *device
	label   string
	level   gpu.AccelerationStructureLevel
	size    uint64
	address uint64

	mu     *sync.Mutex
	bottom *bottomLevel

	// top level only
	tree       *bvh.Tree
	native     *wgpu.Buffer
	nativeSize uint64
}

var _ gpu.AccelerationStructure = &accelerationStructure{}

func (d *device) AccelerationStructurePrebuildInfo(inputs gpu.BuildInputs) gpu.PrebuildInfo {
	var result uint64
	if inputs.Level == gpu.LevelBottom {
		var tris uint64
		for _, g := range inputs.Geometries {
			tris += uint64(g.IndexCount / 3)
		}
		result = 2*tris*bvh.NodeSize + tris*triangleSize
	} else {
		n := uint64(inputs.InstanceCount)
		result = sceneHeaderSize + 2*n*bvh.NodeSize + n*instanceSlotSize
	}
	return gpu.PrebuildInfo{
		ResultSize:        max(common.AlignUp(result, 256), 256),
		ScratchSize:       256,
		UpdateScratchSize: 256,
	}
}

func (d *device) CreateAccelerationStructure(desc gpu.AccelerationStructureDescriptor) (gpu.AccelerationStructure, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("wgpu_backend: acceleration structure %q has zero size", desc.Label)
	}
	as := &accelerationStructure{
		dev:     d,
		label:   desc.Label,
		level:   desc.Level,
		size:    desc.Size,
		address: d.allocAddress(desc.Size),
		mu:      &sync.Mutex{},
	}
	d.mu.Lock()
	d.structures[as.address] = as
	d.mu.Unlock()
	return as, nil
}

func (as *accelerationStructure) Level() gpu.AccelerationStructureLevel {
	return as.level
}

func (as *accelerationStructure) Address() uint64 {
	return as.address
}

func (as *accelerationStructure) Size() uint64 {
	return as.size
}

func (as *accelerationStructure) Release() {
	as.dev.mu.Lock()
	delete(as.dev.structures, as.address)
	as.dev.mu.Unlock()

	as.mu.Lock()
	defer as.mu.Unlock()
	as.bottom = nil
	as.tree = nil
	if as.native != nil {
		as.native.Release()
		as.native = nil
	}
}

// scene returns the packed scene buffer of a built top-level structure.
func (as *accelerationStructure) scene() *wgpu.Buffer {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.native
}

func (as *accelerationStructure) built() *bottomLevel {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.bottom
}

// structure resolves a build destination created by this device.
func (d *device) structure(s gpu.AccelerationStructure, level gpu.AccelerationStructureLevel) (*accelerationStructure, error) {
	as, ok := s.(*accelerationStructure)
	if !ok || as == nil {
		return nil, fmt.Errorf("wgpu_backend: acceleration structure %T was not created by this device", s)
	}
	if as.level != level {
		return nil, fmt.Errorf("wgpu_backend: acceleration structure %q has the wrong level", as.label)
	}
	return as, nil
}

// buildBottomLevel runs consecutive bottom-level builds on the worker pool.
func (d *device) buildBottomLevel(batch []gpu.BuildDescriptor) error {
	if len(batch) == 1 {
		return d.buildBottom(batch[0])
	}
	var wg sync.WaitGroup
	errs := make([]error, len(batch))
	for i, desc := range batch {
		wg.Add(1)
		d.pool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				errs[i] = d.buildBottom(desc)
				return nil, errs[i]
			},
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *device) buildBottom(desc gpu.BuildDescriptor) error {
	as, err := d.structure(desc.Destination, gpu.LevelBottom)
	if err != nil {
		return err
	}
	positions, indices, err := gatherTriangles(desc.Inputs.Geometries)
	if err != nil {
		return fmt.Errorf("wgpu_backend: build %q: %w", as.label, err)
	}
	bounds := bvh.TriangleBounds(positions, indices)

	var tree *bvh.Tree
	prev := as.built()
	if desc.Inputs.Flags.Has(gpu.BuildPerformUpdate) && prev != nil && len(prev.tree.Order) == len(bounds) {
		tree = &bvh.Tree{Nodes: append([]bvh.Node(nil), prev.tree.Nodes...), Order: prev.tree.Order}
		tree.Refit(bounds)
	} else {
		if desc.Inputs.Flags.Has(gpu.BuildPerformUpdate) {
			logger.Logger().Warn("acceleration structure update fell back to a rebuild", "label", as.label, "triangles", len(bounds))
		}
		tree = bvh.Build(bounds)
	}

	result := &bottomLevel{
		tree:      tree,
		bounds:    tree.Bounds(),
		nodes:     tree.Marshal(),
		triangles: packTriangles(positions, indices, tree.Order),
	}
	as.mu.Lock()
	as.bottom = result
	as.mu.Unlock()
	return nil
}

// gatherTriangles reads positions and indices of all geometries from the buffer shadows
// into one indexed triangle list.
func gatherTriangles(geometries []gpu.TriangleGeometry) ([][3]float32, []uint32, error) {
	var positions [][3]float32
	var indices []uint32
	for gi, g := range geometries {
		if g.VertexCount == 0 || g.IndexCount == 0 {
			continue
		}
		if g.VertexStride < 12 {
			return nil, nil, fmt.Errorf("geometry %d: vertex stride %d is shorter than a position", gi, g.VertexStride)
		}
		vb, err := nativeBuffer(g.VertexBuffer)
		if err != nil {
			return nil, nil, fmt.Errorf("geometry %d: %w", gi, err)
		}
		ib, err := nativeBuffer(g.IndexBuffer)
		if err != nil {
			return nil, nil, fmt.Errorf("geometry %d: %w", gi, err)
		}

		stride := uint64(g.VertexStride)
		vdata, err := vb.snapshot(0, uint64(g.VertexCount-1)*stride+12)
		if err != nil {
			return nil, nil, fmt.Errorf("geometry %d: %w", gi, err)
		}
		idata, err := ib.snapshot(0, uint64(g.IndexCount)*4)
		if err != nil {
			return nil, nil, fmt.Errorf("geometry %d: %w", gi, err)
		}

		base := uint32(len(positions))
		for v := uint64(0); v < uint64(g.VertexCount); v++ {
			o := vdata[v*stride:]
			positions = append(positions, [3]float32{
				math.Float32frombits(binary.LittleEndian.Uint32(o[0:])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[4:])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[8:])),
			})
		}
		for i := uint32(0); i < g.IndexCount/3*3; i++ {
			idx := binary.LittleEndian.Uint32(idata[i*4:])
			if idx >= g.VertexCount {
				return nil, nil, fmt.Errorf("%w: geometry %d index %d of %d vertices", gpu.ErrOutOfRange, gi, idx, g.VertexCount)
			}
			indices = append(indices, base+idx)
		}
	}
	return positions, indices, nil
}

// packTriangles writes triangles in leaf order as three vec4 each; the w word of the first
// vertex holds the primitive index.
func packTriangles(positions [][3]float32, indices []uint32, order []uint32) []byte {
	buf := make([]byte, len(order)*triangleSize)
	for i, prim := range order {
		o := buf[i*triangleSize:]
		for k := 0; k < 3; k++ {
			p := positions[indices[prim*3+uint32(k)]]
			putVec3(o[k*vec4Size:], p)
		}
		binary.LittleEndian.PutUint32(o[12:], prim)
	}
	return buf
}

func putVec3(b []byte, v [3]float32) {
	for k := 0; k < 3; k++ {
		binary.LittleEndian.PutUint32(b[k*4:], math.Float32bits(v[k]))
	}
}

// sceneInstance is one decoded instance record with its resolved bottom level.
type sceneInstance struct {
	desc    gpu.InstanceDesc
	inverse [12]float32
	bottom  *bottomLevel
}

func (d *device) buildTopLevel(desc gpu.BuildDescriptor, retire func(func())) error {
	as, err := d.structure(desc.Destination, gpu.LevelTop)
	if err != nil {
		return err
	}
	instances, err := d.readInstances(desc.Inputs)
	if err != nil {
		return fmt.Errorf("wgpu_backend: build %q: %w", as.label, err)
	}
	bounds := make([]bvh.AABB, len(instances))
	for i, inst := range instances {
		bounds[i] = bvh.Empty()
		if inst.bottom != nil {
			bounds[i] = bvh.TransformBounds(inst.bottom.bounds, inst.desc.Transform)
		}
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	if desc.Inputs.Flags.Has(gpu.BuildPerformUpdate) && as.tree != nil && len(as.tree.Order) == len(bounds) {
		as.tree.Refit(bounds)
	} else {
		if desc.Inputs.Flags.Has(gpu.BuildPerformUpdate) {
			logger.Logger().Warn("acceleration structure update fell back to a rebuild", "label", as.label, "instances", len(bounds))
		}
		as.tree = bvh.Build(bounds)
	}
	return as.upload(packScene(as.tree, instances), retire)
}

// readInstances decodes the instance buffer and resolves the bottom-level structures the
// records point at. Records with a zero address or a singular transform are skipped by
// traversal.
func (d *device) readInstances(inputs gpu.BuildInputs) ([]sceneInstance, error) {
	if inputs.InstanceCount == 0 {
		return nil, nil
	}
	ib, err := nativeBuffer(inputs.InstanceBuffer)
	if err != nil {
		return nil, err
	}
	data, err := ib.snapshot(0, uint64(inputs.InstanceCount)*gpu.InstanceDescSize)
	if err != nil {
		return nil, err
	}

	instances := make([]sceneInstance, inputs.InstanceCount)
	for i := range instances {
		inst, err := gpu.UnmarshalInstanceDesc(data[i*gpu.InstanceDescSize:])
		if err != nil {
			return nil, err
		}
		instances[i].desc = inst
		if inst.AccelerationStructure == 0 {
			continue
		}
		d.mu.Lock()
		blas, ok := d.structures[inst.AccelerationStructure]
		d.mu.Unlock()
		if !ok || blas.level != gpu.LevelBottom {
			return nil, fmt.Errorf("instance %d references unknown bottom level %#x", i, inst.AccelerationStructure)
		}
		bottom := blas.built()
		if bottom == nil {
			return nil, fmt.Errorf("instance %d references %q before it was built", i, blas.label)
		}
		inverse, ok := common.FromRowMajor3x4(inst.Transform).Inverse()
		if !ok {
			continue
		}
		instances[i].inverse = inverse.RowMajor3x4()
		instances[i].bottom = bottom
	}
	return instances, nil
}

// packScene lays out the scene buffer read by the traversal runtime.
//
// Parameters:
//   - tree: the top-level hierarchy over the instances
//   - instances: the instances in input order
//
// Returns:
//   - []byte: header, top-level nodes, instance slots in leaf order, then each distinct
//     bottom level's nodes followed by its triangles
func packScene(tree *bvh.Tree, instances []sceneInstance) []byte {
	nodes := tree.Marshal()
	nodeStart := uint32(1)
	instStart := nodeStart + uint32(len(nodes)/vec4Size)
	cursor := instStart + uint32(len(tree.Order))*instanceSlotSize/vec4Size

	type placement struct{ nodeStart, triStart uint32 }
	placed := make(map[*bottomLevel]placement)
	var bottoms []*bottomLevel
	for _, idx := range tree.Order {
		b := instances[idx].bottom
		if b == nil {
			continue
		}
		if _, ok := placed[b]; ok {
			continue
		}
		p := placement{nodeStart: cursor}
		cursor += uint32(len(b.nodes) / vec4Size)
		p.triStart = cursor
		cursor += uint32(len(b.triangles) / vec4Size)
		placed[b] = p
		bottoms = append(bottoms, b)
	}

	buf := make([]byte, uint64(cursor)*vec4Size)
	binary.LittleEndian.PutUint32(buf[0:], nodeStart)
	binary.LittleEndian.PutUint32(buf[4:], instStart)
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(tree.Order)))
	copy(buf[nodeStart*vec4Size:], nodes)

	for slot, idx := range tree.Order {
		inst := instances[idx]
		o := buf[(instStart*vec4Size)+uint32(slot)*instanceSlotSize:]
		for k, v := range inst.inverse {
			binary.LittleEndian.PutUint32(o[k*4:], math.Float32bits(v))
		}
		words := o[3*vec4Size:]
		binary.LittleEndian.PutUint32(words[0:], skippedInstance)
		if p, ok := placed[inst.bottom]; ok && inst.bottom != nil {
			binary.LittleEndian.PutUint32(words[0:], p.nodeStart)
			binary.LittleEndian.PutUint32(words[4:], p.triStart)
		}
		binary.LittleEndian.PutUint32(words[8:], inst.desc.InstanceID&0xFFFFFF|uint32(inst.desc.Mask)<<24)
		binary.LittleEndian.PutUint32(words[12:], inst.desc.HitGroupIndex&0xFFFFFF|uint32(inst.desc.Flags)<<24)
	}

	for _, b := range bottoms {
		p := placed[b]
		copy(buf[p.nodeStart*vec4Size:], b.nodes)
		copy(buf[p.triStart*vec4Size:], b.triangles)
	}
	return buf
}

// upload writes the packed scene into the structure's storage buffer, growing it when
// the scene no longer fits. The replaced buffer is released through retire. Callers hold
// as.mu.
func (as *accelerationStructure) upload(data []byte, retire func(func())) error {
	size := common.AlignUp(uint64(len(data)), 256)
	if as.native == nil || as.nativeSize < size {
		size = max(size, common.AlignUp(as.size, 256))
		native, err := as.dev.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: as.label,
			Size:  size,
			Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("wgpu_backend: create scene buffer %q: %w", as.label, err)
		}
		if as.native != nil {
			retire(as.native.Release)
		}
		as.native = native
		as.nativeSize = size
	}
	as.dev.queue.WriteBuffer(as.native, 0, data)
	return nil
}
