package plugin

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/eddielth/pt100-south/logger"
)

// Handle is the engine state carried between lifecycle calls
type Handle struct {
	Config Configuration
	Probes *ProbeSet
}

// Diff returns the sorted names of items whose value differs between old and new.
// Items present on only one side are reported as changed.
func Diff(old, new Configuration) []string {
	changed := make([]string, 0)

	for name, oldItem := range old {
		newItem, ok := new[name]
		if !ok || !sameValue(oldItem, newItem) {
			changed = append(changed, name)
		}
	}
	for name := range new {
		if _, ok := old[name]; !ok {
			changed = append(changed, name)
		}
	}

	sort.Strings(changed)
	return changed
}

// sameValue compares two item values according to the type of the new item
func sameValue(a, b ConfigItem) bool {
	av, bv := strings.TrimSpace(a.Value), strings.TrimSpace(b.Value)

	switch b.Type {
	case "integer":
		ai, aerr := strconv.ParseInt(av, 10, 64)
		bi, berr := strconv.ParseInt(bv, 10, 64)
		if aerr == nil && berr == nil {
			return ai == bi
		}
	case "float":
		af, aerr := strconv.ParseFloat(av, 64)
		bf, berr := strconv.ParseFloat(bv, 64)
		if aerr == nil && berr == nil {
			return af == bf
		}
	case "boolean":
		ab, aerr := strconv.ParseBool(av)
		bb, berr := strconv.ParseBool(bv)
		if aerr == nil && berr == nil {
			return ab == bb
		}
	}

	return av == bv
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Reconcile moves old to newCfg. The probe set is rebuilt only when the pins item changed;
// otherwise the new handle shares the old probe set. On failure old remains the valid state.
// The restart flag is always false: rebinding happens here rather than in the host.
func Reconcile(bus Bus, old Handle, newCfg Configuration) (Handle, bool, error) {
	settings, err := newCfg.Settings()
	if err != nil {
		return old, false, err
	}

	diff := Diff(old.Config, newCfg)
	logger.Debug("plugin configuration diff: %v", diff)

	next := Handle{Config: newCfg.Clone(), Probes: old.Probes}
	if !contains(diff, ItemPins) {
		return next, false, nil
	}

	oldPins := old.Probes.Pins()
	if err := old.Probes.Release(); err != nil {
		logger.Warn("failed to release probes on pins %v: %v", oldPins, err)
	}

	probes, err := bindPins(bus, settings.Pins)
	if err != nil {
		restored, rerr := bindPins(bus, oldPins)
		if rerr != nil {
			return old, false, errors.Join(err, rerr)
		}
		logger.Warn("rebind to pins %v failed, restored pins %v", settings.Pins, oldPins)
		return Handle{Config: old.Config, Probes: restored}, false, err
	}

	logger.Info("probes rebound from pins %v to pins %v", oldPins, settings.Pins)
	next.Probes = probes
	return next, false, nil
}
