package config

import (
	"fmt"
	"os"
)

// Template is the commented starting configuration written by payoutd -init.
const Template = `# Payout coordinator configuration.

# Log level: debug, info, warn, error.
log_level: info

sc_rpc_client:
  # Base URL of the pool server.
  rpc_url: http://localhost:8080
  # Shared secret for message signing. Must match the pool server.
  rpc_signature: change-me
  # Maximum accepted message age in seconds.
  max_age: 10
  # Confirmation depth before a transaction is reported confirmed.
  min_confirms: 12
  # Smallest per-address amount worth sending, in coins.
  minimum_tx_output: "0.00000001"
  # Directory holding the per-currency payout databases.
  database_path: .

scheduler:
  # Interval between payout pulls.
  ingest: 1m
  # Daily wall-clock times (HH:MM) for the send, association and
  # confirmation runs.
  settle: "23:00"
  associate: "00:00"
  confirm: "01:00"

monitor:
  # Bind address for the status server, e.g. 127.0.0.1:9090.
  # Empty disables it.
  listen: ""

currencies:
  - currency_code: LTC
    enabled: false
    # Optional; defaults come from the built-in currency params.
    # address_scheme: bech32
    # valid_address_versions: [48, 50]
    coinserv:
      username: litecoinrpc
      password: change-me
      address: 127.0.0.1
      port: 9332
      account: ""
      wallet_pass: ""
`

// WriteTemplate writes the starting configuration. Refuses to overwrite an
// existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}
	return nil
}
