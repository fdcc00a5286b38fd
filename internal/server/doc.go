// Package server 把缓存目录以只读 HTTP 文件镜像的形式发布，便于其他机器
// 拷贝 .nupkg 与缓存的安装资源。它不实现 NuGet v2 查询接口，不能直接作为 choco 源。
// 除静态文件外还暴露 /-/packages 清单接口，所有响应都带 X-Request-ID。
package server
