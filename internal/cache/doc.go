// Package cache defines the disk-backed store that holds downloaded package
// archives and the resources their install scripts reference. Entries are
// addressed by Locator (directory + relative name); writes go through a temp
// file + rename so an interrupted download never leaves a partial file that a
// later run would treat as already cached. The fetcher relies on Stat for its
// skip-if-present check and on Put for the atomic write; the file mirror
// server streams entries back out through Get.
package cache
