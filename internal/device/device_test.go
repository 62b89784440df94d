package device

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-hub/internal/cluster"
	"github.com/nerrad567/gray-logic-hub/internal/cluster/memory"
)

type failingCluster struct {
	*memory.OnOff
	err error
}

func (f failingCluster) Close() error {
	_ = f.OnOff.Close()
	return f.err
}

func TestEndpoint_TreeTraversal(t *testing.T) {
	onOff := memory.NewOnOff()
	level := memory.NewLevelControl(0)
	left := memory.NewSwitch(cluster.SwitchPlain, 0, 2, "Left")
	right := memory.NewSwitch(cluster.SwitchPlain, 1, 2, "Right")

	leftEP := NewEndpoint([]cluster.Cluster{left})
	rightEP := NewEndpoint([]cluster.Cluster{right})
	bridge := NewEndpoint([]cluster.Cluster{level}, leftEP, rightEP)
	root := NewEndpoint([]cluster.Cluster{onOff}, bridge)

	assert.Equal(t, []cluster.Cluster{onOff, level, left, right}, root.AllClusters())
	assert.Equal(t, []*Endpoint{bridge, leftEP, rightEP}, root.AllEndpoints())

	got, ok := root.ClusterByName(cluster.NameSwitch)
	require.True(t, ok)
	assert.Same(t, left, got)
	assert.Len(t, root.ClustersByName(cluster.NameSwitch), 2)

	_, ok = root.ClusterByName(cluster.NameDoorLock)
	assert.False(t, ok)
}

func TestClusterOf_ByTag(t *testing.T) {
	d := New(Info{ID: "mqtt:strip", Source: SourceMQTT}, NewEndpoint([]cluster.Cluster{
		memory.NewOnOff(),
		memory.NewColorTemperature(2700, 6500),
	}, NewEndpoint([]cluster.Cluster{memory.NewColorXY(3)})))

	xy, ok := ClusterOf[cluster.ColorControlXY](d, cluster.NameColorControl)
	require.True(t, ok)
	assert.Equal(t, 3, xy.SegmentCount())

	assert.Len(t, AllClustersOf[cluster.ColorControl](d, cluster.NameColorControl), 2)
	assert.Len(t, AllClustersOf[cluster.OnOff](d, cluster.NameOnOff), 1)

	_, ok = ClusterOf[cluster.Thermostat](d, cluster.NameThermostat)
	assert.False(t, ok)
}

func TestDevice_OnChangeAggregatesDescendants(t *testing.T) {
	onOff := memory.NewOnOff()
	temp := memory.NewTemperature()
	d := New(Info{ID: "mqtt:combo", Source: SourceMQTT},
		NewEndpoint([]cluster.Cluster{onOff}, NewEndpoint([]cluster.Cluster{temp})))

	changes := 0
	d.OnChange().Listen(func(struct{}) { changes++ })

	onOff.IsOnData.Set(true)
	temp.TemperatureData.Set(19.5)
	temp.TemperatureData.Set(19.5)

	assert.Equal(t, 2, changes)
	assert.Equal(t, StatusOnline, d.Status().Current())
}

func TestDevice_CloseCascadesAndJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	d := New(Info{ID: "mqtt:x", Source: SourceMQTT}, NewEndpoint(
		[]cluster.Cluster{failingCluster{memory.NewOnOff(), errA}},
		NewEndpoint([]cluster.Cluster{failingCluster{memory.NewOnOff(), errB}}),
	))

	err := d.Close()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, err, d.Close())
}
