// Package custody 封装外部托管签名服务：托管账户服务负责创建、导入与导出
// EOA 私钥并代为签名广播交易；授权服务负责 key quorum 与委托钱包。
// 本包只描述请求与响应，不保存任何私钥。
package custody
