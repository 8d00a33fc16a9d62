// Package bulk batches indexable documents and writes them to a backend in
// one call once a size threshold is reached or on an explicit commit.
//
// A rejected batch is logged and dropped so one bad document cannot stall
// the pipeline. Any other failure is returned and the batch is kept for the
// next attempt. Deletes bypass the batch and are sent at once.
package bulk
