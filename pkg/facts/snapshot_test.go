package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dpkgList = `Desired=Unknown/Install/Remove/Purge/Hold
| Status=Not/Inst/Conf-files/Unpacked/halF-conf/Half-inst/trig-aWait/Trig-pend
||/ Name                     Version                  Architecture Description
+++-========================-========================-============-===========
ii  openvswitch-common       2.17.9-0ubuntu0.22.04.1  amd64        Open vSwitch common components
ii  openvswitch-switch       2.17.9-0ubuntu0.22.04.1  amd64        Open vSwitch switch implementations
rc  openvswitch-old          2.13.0                   amd64        removed
ii  libc6:amd64              2.35-0ubuntu3.6          amd64        GNU C Library
`

const unitFiles = `UNIT FILE                              STATE           VENDOR PRESET
ovs-vswitchd.service                   static          -
ovsdb-server.service                   static          -
openvswitch-switch.service             enabled         enabled
ssh.service                            disabled        enabled

4 unit files listed.
`

const snapList = `Name    Version   Rev    Tracking       Publisher   Notes
lxd     5.0.3     27037  5.0/stable     canonical✓  -
lxd     5.0.2     24061  5.0/stable     canonical✓  disabled
`

func writeSnapshot(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	files := map[string]string{
		DpkgListPath:              dpkgList,
		UnitFilesListPath:         unitFiles,
		SnapListPath:              snapList,
		"etc/openvswitch/conf.db": "",
	}

	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}

	return root
}

func TestNewSnapshot(t *testing.T) {
	root := writeSnapshot(t)

	s, err := NewSnapshot(logrus.New(), SnapshotConfig{
		DataRoot:   root,
		Packages:   []string{"^openvswitch-", "^lxd$"},
		Services:   []string{"^ovs-", "^openvswitch-switch$"},
		Properties: map[string]any{"ovs": map[string]any{"dpdk": true}},
	})
	require.NoError(t, err)

	v, ok := s.PackageVersion("openvswitch-switch")
	require.True(t, ok)
	assert.Equal(t, "2.17.9-0ubuntu0.22.04.1", v)

	_, ok = s.PackageVersion("openvswitch-old")
	assert.False(t, ok, "removed packages are not installed")

	_, ok = s.PackageVersion("libc6")
	assert.False(t, ok, "filtered by package patterns")

	v, ok = s.SnapVersion("lxd")
	require.True(t, ok)
	assert.Equal(t, "5.0.3", v)

	state, ok := s.ServiceState("ovs-vswitchd")
	require.True(t, ok)
	assert.Equal(t, ServiceStatic, state)

	state, ok = s.ServiceState("openvswitch-switch.service")
	require.True(t, ok)
	assert.Equal(t, ServiceEnabled, state)

	_, ok = s.ServiceState("ssh")
	assert.False(t, ok)

	prop, ok := s.Property("ovs.dpdk")
	require.True(t, ok)
	assert.Equal(t, true, prop)

	assert.True(t, s.PathExists("etc/openvswitch/conf.db"))
	assert.False(t, s.PathExists("etc/nothing"))
}

func TestNewSnapshot_EmptySnapshot(t *testing.T) {
	s, err := NewSnapshot(logrus.New(), SnapshotConfig{DataRoot: t.TempDir()})
	require.NoError(t, err)

	assert.Empty(t, s.Packages())
	assert.Empty(t, s.Services())

	_, ok := s.Property("anything")
	assert.False(t, ok)
}

func TestNewSnapshot_BadPattern(t *testing.T) {
	_, err := NewSnapshot(logrus.New(), SnapshotConfig{DataRoot: t.TempDir(), Packages: []string{"("}})
	require.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := &Static{
		Packages:   map[string]string{"a": "1.0"},
		Services:   map[string]ServiceState{"svc": ServiceEnabled},
		Properties: map[string]any{"x.y": 1, "n": map[string]any{"m": "v"}},
		Paths:      map[string]bool{"etc/x": true},
	}

	v, ok := s.PackageVersion("a")
	assert.True(t, ok)
	assert.Equal(t, "1.0", v)

	st, ok := s.ServiceState("svc.service")
	assert.True(t, ok)
	assert.Equal(t, ServiceEnabled, st)

	p, ok := s.Property("x.y")
	assert.True(t, ok)
	assert.Equal(t, 1, p)

	p, ok = s.Property("n.m")
	assert.True(t, ok)
	assert.Equal(t, "v", p)

	assert.True(t, s.PathExists("etc/x"))
}

func TestNewSnapshot_PatternsMatchUnanchored(t *testing.T) {
	root := writeSnapshot(t)

	tests := []struct {
		name         string
		packages     []string
		services     []string
		wantPackages []string
		wantServices []string
	}{
		{
			name:         "prefix patterns",
			packages:     []string{"^openvswitch-"},
			services:     []string{"^ovs-"},
			wantPackages: []string{"openvswitch-common", "openvswitch-switch"},
			wantServices: []string{"ovs-vswitchd", "ovsdb-server"},
		},
		{
			name:         "substring patterns",
			packages:     []string{"switch"},
			services:     []string{"vswitch"},
			wantPackages: []string{"openvswitch-common", "openvswitch-switch"},
			wantServices: []string{"openvswitch-switch", "ovs-vswitchd"},
		},
		{
			name:         "exact patterns",
			packages:     []string{"^libc6$"},
			services:     []string{"^ssh$"},
			wantPackages: []string{"libc6"},
			wantServices: []string{"ssh"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSnapshot(logrus.New(), SnapshotConfig{
				DataRoot: root,
				Packages: tt.packages,
				Services: tt.services,
			})
			require.NoError(t, err)

			for _, name := range tt.wantPackages {
				_, ok := s.PackageVersion(name)
				assert.True(t, ok, name)
			}

			for _, name := range tt.wantServices {
				_, ok := s.ServiceState(name)
				assert.True(t, ok, name)
			}

			assert.Len(t, s.Packages(), len(tt.wantPackages))
			assert.Len(t, s.Services(), len(tt.wantServices))
		})
	}
}
