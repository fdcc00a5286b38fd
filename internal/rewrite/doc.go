// Package rewrite 扫描安装脚本中的远程 URL，逐个交给 Fetcher 缓存，
// 并把脚本里的 URL 原位替换为本地路径；下载失败的 URL 保持原样。
package rewrite
