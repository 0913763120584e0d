package openvswitch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var dpdkInitRE = regexp.MustCompile(`dpdk-init="?(true|try)"?`)

// Properties implements plugin.Plugin. The result is exposed as
// @openvswitch.bridges, @openvswitch.bridge_count and
// @openvswitch.dpdk_enabled.
func (p *Plugin) Properties(dataRoot string) (map[string]any, error) {
	bridges, err := readLines(filepath.Join(dataRoot, p.cfg.BridgesPath))
	if err != nil {
		return nil, fmt.Errorf("reading bridges: %w", err)
	}

	other, err := readFile(filepath.Join(dataRoot, p.cfg.OtherConfigPath))
	if err != nil {
		return nil, fmt.Errorf("reading other_config: %w", err)
	}

	list := make([]any, 0, len(bridges))
	for _, b := range bridges {
		list = append(list, b)
	}

	return map[string]any{
		Name: map[string]any{
			"bridges":      list,
			"bridge_count": len(bridges),
			"dpdk_enabled": dpdkInitRE.Match(other),
		},
	}, nil
}

// readFile returns nil for captures absent from the snapshot.
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	return data, err
}

func readLines(path string) ([]string, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var out []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}

	return out, sc.Err()
}
