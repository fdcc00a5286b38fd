// Package archive 读写 Chocolatey 的 .nupkg（zip）包：按名称定位条目、
// 以保留 BOM 的方式读取脚本文本、替换单个条目并原子地写回磁盘。
// 未被替换的条目按原始压缩字节复制，保存前后逐字节一致。
package archive
