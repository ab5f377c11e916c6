// Package harness runs conformance scenarios against the real engine.
//
// A scenario drives a script core through a sequence of events with stubbed
// HTTP and seeded storage, then checks the journal trace, the final view,
// emitted shell events and storage contents. Runs are deterministic: every
// scenario uses a fresh in-memory journal, a fixed flow token and the
// sequential engine, so traces can be compared against golden files.
//
// # Scenario Format
//
//	name: callback_exchanges_code
//	description: "Callback swaps the code for a token and loads the user"
//	flow_token: flow-callback
//	script: ../scripts/custom.yaml   # optional, default script otherwise
//	vars: {client_id: test}
//	storage:
//	  github_tokens: gho_stored
//	http:
//	  - method: GET
//	    url: https://api.github.com/user
//	    status: 200
//	    body: '{"name":"Mona"}'
//	events:
//	  - event: callback_received
//	    url: http://localhost:8080/callback?code=abc
//	assertions:
//	  - type: trace_contains
//	    effect: http
//	    detail: GET https://api.github.com/user
//	  - type: view_user
//	    name: Mona
//	  - type: storage
//	    key: github_tokens
//	    value: gho_new
//
// # Golden Files
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
