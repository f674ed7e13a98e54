// Package app provides application initialization and lifecycle management
// for the district price index server. It wires configuration, logging,
// observability, the analysis service and the HTTP transport together and
// handles graceful shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//  1. Load configuration from environment and files
//  2. Initialize logging and OpenTelemetry
//  3. Resolve and prepare the data directories
//  4. Start the WebSocket hub and create services
//  5. Set up the router and middleware chain
//  6. Configure and start the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	application, err := app.NewApplication(frontendFS)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// Run blocks until an interrupt or SIGTERM arrives, then drains active
// requests, stops the WebSocket hub and flushes telemetry before returning.
//
// # Error Handling
//
// All initialization errors are returned to the caller. The app does not
// call os.Exit() directly, allowing the main function to control the exit
// process.
package app
