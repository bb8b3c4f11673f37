package server

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const eulaFile = "eula.txt"

// readProperties parses a key=value file, keeping key order. A missing file
// is empty.
func readProperties(path string) (map[string]string, []string, error) {
	props := make(map[string]string)
	var order []string

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return props, order, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			if _, seen := props[key]; !seen {
				order = append(order, key)
			}
			props[key] = strings.TrimSpace(parts[1])
		}
	}
	return props, order, scanner.Err()
}

// setProperty rewrites path with key set to value. Other keys keep their
// order; comments are replaced by header.
func setProperty(path, header, key, value string) error {
	props, order, err := readProperties(path)
	if err != nil {
		return err
	}
	if _, ok := props[key]; !ok {
		order = append(order, key)
	}
	props[key] = value

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if header != "" {
		fmt.Fprintf(writer, "# %s\n", header)
	}
	for _, k := range order {
		fmt.Fprintf(writer, "%s=%s\n", k, props[k])
	}
	return writer.Flush()
}

func (m *Manager) Eula(id string) (bool, error) {
	srv, err := m.GetServer(id)
	if err != nil {
		return false, err
	}
	props, _, err := readProperties(filepath.Join(srv.Directory, eulaFile))
	if err != nil {
		return false, err
	}
	return strings.EqualFold(props["eula"], "true"), nil
}

func (m *Manager) SetEula(id string, accept bool) error {
	srv, err := m.GetServer(id)
	if err != nil {
		return err
	}
	return setProperty(filepath.Join(srv.Directory, eulaFile), "Written by craftdeck devserver", "eula", fmt.Sprintf("%t", accept))
}
