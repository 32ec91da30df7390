/*
Package cli provides the helpers shared by the dispatch commands.

Errors:

Commands return *ConfigError for unusable configuration and *CommandError
for runtime failures. ExitCode maps them to the process exit status.

Endpoint advertisement:

Once the request handler has provisioned its endpoints, the run command
tells its parent where to connect:

	cli.AdvertiseEndpoints(os.Stdout, cli.FormatText, h.Endpoints())

In text format every endpoint becomes one "!> socket: " line followed by a
terminating "!> " line. JSON output is meant for humans and scripts.

Interrupts:

	ctx, stop, err := cli.InterruptContext(router)
	defer stop()

cancels ctx on SIGINT. The disposition is installed through the signal
router so the main loop can replace and later restore it.
*/
package cli
