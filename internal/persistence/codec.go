package persistence

import (
	"encoding/json"

	"github.com/tmattila/stagegate/pkg/api"
)

// Gate maps and full instances are persisted as JSON. All persisted types
// are plain exported structs, so JSON round-trips them losslessly and the
// stored payloads remain inspectable with ordinary database tooling.

func encodeGates(gates map[string]api.GateState) ([]byte, error) {
	if gates == nil {
		gates = map[string]api.GateState{}
	}
	return json.Marshal(gates)
}

func decodeGates(data []byte) (map[string]api.GateState, error) {
	gates := make(map[string]api.GateState)
	if len(data) == 0 {
		return gates, nil
	}
	if err := json.Unmarshal(data, &gates); err != nil {
		return nil, err
	}
	return gates, nil
}

func encodeInstance(inst *api.WorkflowInstance) ([]byte, error) {
	return json.Marshal(inst)
}

func decodeInstance(data []byte) (*api.WorkflowInstance, error) {
	var inst api.WorkflowInstance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	if inst.Gates == nil {
		inst.Gates = make(map[string]api.GateState)
	}
	return &inst, nil
}

func encodeEvent(ev api.WorkflowEvent) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(data []byte) (api.WorkflowEvent, error) {
	var ev api.WorkflowEvent
	err := json.Unmarshal(data, &ev)
	return ev, err
}
