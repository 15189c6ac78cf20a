// Package publish implements the final stage: handing the rendered video,
// its thumbnail and metadata to an upload target.
//
// Two targets exist. The simulated target writes metadata and a thumbnail
// copy under data_dir/simulated_uploads, matching what an upload would have
// produced. The object_store target puts the files in an S3-compatible
// bucket under <prefix>/<date>-<slug>/.
package publish
